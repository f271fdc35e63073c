package engine

import "github.com/tphakala/audiostream/internal/audiocore"

// Recorder receives engine statistics. Counts are reported as deltas since
// the previous report.
type Recorder interface {
	RecordLoopExit(reason string)
	RecordXRuns(direction string, delta int64)
	RecordFrames(direction string, delta int64)
	RecordCallbacks(delta int64)
}

type nopRecorder struct{}

func (nopRecorder) RecordLoopExit(string)      {}
func (nopRecorder) RecordXRuns(string, int64)  {}
func (nopRecorder) RecordFrames(string, int64) {}
func (nopRecorder) RecordCallbacks(int64)      {}

// streamCounters remembers what was last reported for one stream.
type streamCounters struct {
	xruns     int64
	frames    int64
	callbacks int64
}

// StreamStatus describes one open stream.
type StreamStatus struct {
	Handle         int    `json:"handle"`
	Direction      string `json:"direction"`
	API            string `json:"api"`
	State          string `json:"state"`
	Format         string `json:"format"`
	SampleRate     int    `json:"sample_rate"`
	ChannelCount   int    `json:"channel_count"`
	FramesPerBurst int    `json:"frames_per_burst"`
	BufferSize     int    `json:"buffer_size"`
	BufferCapacity int    `json:"buffer_capacity"`
	XRuns          int64  `json:"xruns"`
	FramesWritten  int64  `json:"frames_written"`
	FramesRead     int64  `json:"frames_read"`
	Callbacks      int64  `json:"callbacks"`
	UsesCallback   bool   `json:"uses_callback"`
	UsesConversion bool   `json:"uses_conversion"`
}

// Status is a snapshot of the engine.
type Status struct {
	Activity       string         `json:"activity"`
	ToneType       string         `json:"tone_type"`
	Streams        []StreamStatus `json:"streams"`
	Callbacks      int64          `json:"callbacks"`
	LoopRunning    bool           `json:"loop_running"`
	Peaks          []float32      `json:"peaks,omitempty"`
	RecordedFrames int            `json:"recorded_frames"`
}

func describeStream(handle int, s audiocore.Stream) StreamStatus {
	cfg := s.Config()
	return StreamStatus{
		Handle:         handle,
		Direction:      cfg.Direction.String(),
		API:            s.API().String(),
		State:          s.State().String(),
		Format:         cfg.Format.String(),
		SampleRate:     cfg.SampleRate,
		ChannelCount:   cfg.ChannelCount,
		FramesPerBurst: s.FramesPerBurst(),
		BufferSize:     s.BufferSizeInFrames(),
		BufferCapacity: s.BufferCapacityInFrames(),
		XRuns:          s.XRunCount(),
		FramesWritten:  s.FramesWritten(),
		FramesRead:     s.FramesRead(),
		Callbacks:      s.CallbackCount(),
		UsesCallback:   s.UsesCallback(),
		UsesConversion: s.UsesConversion(),
	}
}

// sampleLocked reports counter deltas of s to the recorder.
func (e *Engine) sampleLocked(s audiocore.Stream) {
	c, ok := e.counters[s]
	if !ok {
		c = &streamCounters{}
		e.counters[s] = c
	}
	dir := s.Config().Direction.String()

	xruns := s.XRunCount()
	frames := s.FramesWritten()
	if s.Config().IsInput() {
		frames = s.FramesRead()
	}
	callbacks := s.CallbackCount()

	if d := xruns - c.xruns; d > 0 {
		e.recorder.RecordXRuns(dir, d)
	}
	if d := frames - c.frames; d > 0 {
		e.recorder.RecordFrames(dir, d)
	}
	if d := callbacks - c.callbacks; d > 0 {
		e.recorder.RecordCallbacks(d)
	}
	c.xruns, c.frames, c.callbacks = xruns, frames, callbacks
}
