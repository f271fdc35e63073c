// Package metrics provides Prometheus metrics for audio streams and the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/errors"
)

// StreamMetrics contains Prometheus metrics for stream lifecycle and engine
// I/O. It serves as the stream observer and as the engine recorder.
type StreamMetrics struct {
	registry *prometheus.Registry

	// Stream lifecycle
	streamsOpened    *prometheus.CounterVec
	stateTransitions *prometheus.CounterVec
	quirksFired      *prometheus.CounterVec

	// Data path
	xruns     *prometheus.CounterVec
	frames    *prometheus.CounterVec
	callbacks prometheus.Counter
	loopExits *prometheus.CounterVec

	// Control path
	errorsTotal *prometheus.CounterVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewStreamMetrics creates and registers new stream metrics
func NewStreamMetrics(registry *prometheus.Registry) (*StreamMetrics, error) {
	m := &StreamMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *StreamMetrics) initMetrics() {
	m.streamsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_opened_total",
			Help:      "Total number of stream open attempts by api, direction and result",
		},
		[]string{"api", "direction", "result"},
	)

	m.stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_state_transitions_total",
			Help:      "Total number of stream state transitions by target state",
		},
		[]string{"state"},
	)

	m.quirksFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quirk_rules_fired_total",
			Help:      "Total number of device quirk rule firings at open time",
		},
		[]string{"rule"},
	)

	m.xruns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xruns_total",
			Help:      "Total number of underruns and overruns",
		},
		[]string{"direction"},
	)

	m.frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of frames written to outputs or read from inputs",
		},
		[]string{"direction"},
	)

	m.callbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Total number of data callbacks and blocking I/O blocks",
		},
	)

	m.loopExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocking_loop_exits_total",
			Help:      "Total number of blocking I/O loop exits by reason",
		},
		[]string{"reason"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of control path errors by component and category",
		},
		[]string{"component", "category"},
	)

	m.collectors = []prometheus.Collector{
		m.streamsOpened,
		m.stateTransitions,
		m.quirksFired,
		m.xruns,
		m.frames,
		m.callbacks,
		m.loopExits,
		m.errorsTotal,
	}
}

// Describe implements the Collector interface
func (m *StreamMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *StreamMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// Stream observer methods

// StreamOpened records an open attempt and its result code.
func (m *StreamMetrics) StreamOpened(api audiocore.API, dir audiocore.Direction, err error) {
	m.streamsOpened.WithLabelValues(api.String(), dir.String(), audiocore.ResultOf(err).String()).Inc()
}

// StateChanged records a state transition.
func (m *StreamMetrics) StateChanged(state audiocore.State) {
	m.stateTransitions.WithLabelValues(state.String()).Inc()
}

// QuirkFired records a quirk rule that changed an open decision.
func (m *StreamMetrics) QuirkFired(rule string) {
	m.quirksFired.WithLabelValues(rule).Inc()
}

// Engine recorder methods

// RecordLoopExit records why a blocking I/O loop ended.
func (m *StreamMetrics) RecordLoopExit(reason string) {
	m.loopExits.WithLabelValues(reason).Inc()
}

// RecordXRuns adds newly observed xruns.
func (m *StreamMetrics) RecordXRuns(direction string, delta int64) {
	if delta > 0 {
		m.xruns.WithLabelValues(direction).Add(float64(delta))
	}
}

// RecordFrames adds newly transferred frames.
func (m *StreamMetrics) RecordFrames(direction string, delta int64) {
	if delta > 0 {
		m.frames.WithLabelValues(direction).Add(float64(delta))
	}
}

// RecordCallbacks adds newly run callbacks.
func (m *StreamMetrics) RecordCallbacks(delta int64) {
	if delta > 0 {
		m.callbacks.Add(float64(delta))
	}
}

// RecordError counts a built error. It has the errors.ErrorHook signature.
func (m *StreamMetrics) RecordError(ee *errors.EnhancedError) {
	m.errorsTotal.WithLabelValues(ee.GetComponent(), ee.GetCategory()).Inc()
}
