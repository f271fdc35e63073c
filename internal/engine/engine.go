// Package engine orchestrates streams for the test activities. It owns the
// stream table, wires a flow graph for the selected activity when started,
// and drives a blocking I/O loop when the active stream has no callback.
//
// Control methods are serialized by the engine mutex. The audio thread only
// touches the graph through the callback proxies, whose targets are swapped
// atomically.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/fifo"
	"github.com/tphakala/audiostream/internal/audiocore/processors"
	"github.com/tphakala/audiostream/internal/audiocore/stream"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

// PollInterval is how often Run checks for disconnected streams and reports
// statistics.
const PollInterval = 100 * time.Millisecond

// Options configure an Engine.
type Options struct {
	Activity Activity
	ToneType ToneType

	// UseCallback opens streams with a data callback. Otherwise the engine
	// runs a blocking I/O loop.
	UseCallback bool
	// CallbackSize is the frames per callback or per blocking transfer.
	// Zero uses the stream's burst.
	CallbackSize int

	Amplitude float32
	Frequency float64
	EchoDelay time.Duration

	// Recorder receives statistics. Nil disables them.
	Recorder Recorder
}

// DefaultOptions returns a callback-driven sine test.
func DefaultOptions() Options {
	return Options{
		Activity:    ActivityTestOutput,
		ToneType:    ToneSine,
		UseCallback: true,
		Amplitude:   DefaultAmplitude,
		Frequency:   DefaultFrequency,
		EchoDelay:   DefaultEchoDelay,
	}
}

// Engine runs one activity over the streams in its table.
type Engine struct {
	table    *stream.Table
	recorder Recorder
	log      logger.Logger

	mu           sync.Mutex
	activity     Activity
	toneType     ToneType
	useCallback  bool
	callbackSize int
	amplitude    float32
	frequency    float64
	echoDelay    time.Duration
	toneEnabled  bool
	muted        [MaxOscillators]bool

	inputProxy  callbackProxy
	outputProxy callbackProxy

	tones     *toneGraph
	analyzer  *processors.InputAnalyzer
	recording *processors.Recording
	player    *processors.RecordingSource
	echo      *echoGraph

	loop     *blockingLoop
	counters map[audiocore.Stream]*streamCounters
	wake     chan struct{}
}

// New creates an engine opening streams through table.
func New(table *stream.Table, opts Options) *Engine {
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Frequency <= 0 {
		opts.Frequency = DefaultFrequency
	}
	if opts.EchoDelay <= 0 {
		opts.EchoDelay = DefaultEchoDelay
	}
	return &Engine{
		table:        table,
		recorder:     opts.Recorder,
		log:          GetLogger(),
		activity:     opts.Activity,
		toneType:     opts.ToneType,
		useCallback:  opts.UseCallback,
		callbackSize: max(opts.CallbackSize, 0),
		amplitude:    opts.Amplitude,
		frequency:    opts.Frequency,
		echoDelay:    min(opts.EchoDelay, MaxEchoDelay),
		toneEnabled:  true,
		counters:     make(map[audiocore.Stream]*streamCounters),
		wake:         make(chan struct{}, 1),
	}
}

// Table returns the stream table.
func (e *Engine) Table() *stream.Table { return e.table }

func engineError(err error, op string) *errors.ErrorBuilder {
	return errors.New(err).Component("engine").Context("operation", op)
}

// Open opens a stream for the current activity and returns its handle. The
// output stream of a full duplex activity gets the echo callback and its
// input stream is polled. Otherwise streams get a callback proxy when
// callbacks are enabled. A backend without callbacks is reopened in
// blocking mode.
func (e *Engine) Open(cfg audiocore.StreamConfig) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var cb audiocore.DataCallback
	switch {
	case e.activity.IsFullDuplex():
		if !cfg.IsInput() {
			cb = &e.outputProxy
		}
	default:
		// Blocking streams size their buffer from the block as well
		cfg.FramesPerCallback = e.callbackSize
		if e.useCallback {
			cb = e.proxyFor(cfg.IsInput())
		}
	}

	handle, s, err := e.table.Open(cfg, cb)
	if err != nil && cb != nil && errors.Is(err, audiocore.ErrUnimplemented) {
		e.log.Warn("backend does not support callbacks, using blocking I/O",
			logger.String("direction", cfg.Direction.String()),
			logger.String("api", cfg.API.String()))
		handle, s, err = e.table.Open(cfg, nil)
	}
	if err != nil {
		e.log.Warn("open failed",
			logger.String("direction", cfg.Direction.String()),
			logger.Error(err))
		return -1, err
	}

	e.counters[s] = &streamCounters{}
	got := s.Config()
	e.log.Info("stream opened",
		logger.Int("handle", handle),
		logger.String("direction", got.Direction.String()),
		logger.String("api", s.API().String()),
		logger.Int("sample_rate", got.SampleRate),
		logger.Int("channels", got.ChannelCount),
		logger.String("format", got.Format.String()),
		logger.Int("frames_per_burst", s.FramesPerBurst()),
		logger.Bool("callback", s.UsesCallback()),
		logger.Bool("conversion", s.UsesConversion()))
	return handle, nil
}

func (e *Engine) proxyFor(input bool) *callbackProxy {
	if input {
		return &e.inputProxy
	}
	return &e.outputProxy
}

// Stream returns the stream for handle.
func (e *Engine) Stream(handle int) (audiocore.Stream, error) {
	return e.table.Get(handle)
}

// streamFor returns the open stream with the lowest handle in direction dir.
func (e *Engine) streamFor(dir audiocore.Direction) audiocore.Stream {
	for _, h := range e.table.Handles() {
		if s, err := e.table.Get(h); err == nil && s.Config().Direction == dir {
			return s
		}
	}
	return nil
}

func (e *Engine) openStreams() map[int]audiocore.Stream {
	out := make(map[int]audiocore.Stream)
	for _, h := range e.table.Handles() {
		if s, err := e.table.Get(h); err == nil {
			out[h] = s
		}
	}
	return out
}

// Start stops any running activity, rewires the graph and starts the
// streams the activity needs.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	in := e.streamFor(audiocore.DirectionInput)
	out := e.streamFor(audiocore.DirectionOutput)
	if in == nil && out == nil {
		return engineError(audiocore.ErrInvalidState, "start").Context("reason", "no stream open").Build()
	}

	if err := e.stopLocked(); err != nil {
		e.log.Debug("stop before start failed", logger.Error(err))
	}
	if err := e.configureLocked(in, out); err != nil {
		return err
	}

	var driver audiocore.Stream
	switch {
	case e.activity.IsFullDuplex():
		if err := in.RequestStart(); err != nil {
			return err
		}
		if err := out.RequestStart(); err != nil {
			_ = in.RequestStop()
			return err
		}
		driver = out
	case e.activity.IsInput():
		if err := in.RequestStart(); err != nil {
			return err
		}
		driver = in
	default:
		if err := out.RequestStart(); err != nil {
			return err
		}
		driver = out
	}

	if !driver.UsesCallback() {
		e.startLoopLocked(driver)
	}
	e.log.Info("activity started",
		logger.String("activity", e.activity.String()),
		logger.String("tone", e.toneType.String()),
		logger.Bool("blocking", !driver.UsesCallback()))
	return nil
}

// configureLocked builds the graph for the current activity and points the
// callback proxies at it.
func (e *Engine) configureLocked(in, out audiocore.Stream) error {
	e.inputProxy.setTarget(nil)
	e.outputProxy.setTarget(nil)
	e.tones, e.echo, e.player = nil, nil, nil

	switch e.activity.configuredAs() {
	case ActivityTestInput, ActivityRecordPlay:
		if in == nil {
			return e.missingStream(audiocore.DirectionInput)
		}
		cfg := in.Config()
		e.analyzer = processors.NewInputAnalyzer(cfg.ChannelCount)
		e.recording = processors.NewRecording(cfg.ChannelCount, cfg.SampleRate, RecordingSeconds*cfg.SampleRate)
		e.analyzer.SetRecording(e.recording)
		e.inputProxy.setTarget(newInputHandler(e.analyzer, cfg))
		return nil

	case ActivityTestOutput, ActivityTapToTone:
		if out == nil {
			return e.missingStream(audiocore.DirectionOutput)
		}
		cfg := out.Config()
		g := newToneGraph(cfg, e.frequency, e.amplitude)
		g.muted = e.muted
		if e.activity == ActivityTapToTone {
			g.connect(ToneSawPing)
		} else {
			g.connect(e.toneType)
			if !e.toneEnabled {
				g.setAmplitude(0)
			}
		}
		e.tones = g
		e.outputProxy.setTarget(newOutputGateway(g.sink, cfg))

	case ActivityEcho:
		if in == nil {
			return e.missingStream(audiocore.DirectionInput)
		}
		if out == nil {
			return e.missingStream(audiocore.DirectionOutput)
		}
		if in.Config().SampleRate != out.Config().SampleRate {
			e.log.Warn("echo streams run at different rates, resampling input",
				logger.Int("input_rate", in.Config().SampleRate),
				logger.Int("output_rate", out.Config().SampleRate))
		}
		g, err := newEchoGraph(in, out, e.echoDelay)
		if err != nil {
			return err
		}
		e.echo = g
		e.outputProxy.setTarget(g.gateway)
	}

	e.sizeOutputBuffer(out)
	return nil
}

func (e *Engine) missingStream(dir audiocore.Direction) error {
	return engineError(audiocore.ErrInvalidState, "start").
		Context("activity", e.activity.String()).
		Context("missing", dir.String()).
		Build()
}

// sizeOutputBuffer sets the output buffer to two bursts, or to enough whole
// bursts to hold two blocks when blocks are larger than a burst.
func (e *Engine) sizeOutputBuffer(out audiocore.Stream) {
	burst := out.FramesPerBurst()
	size, err := out.SetBufferSizeInFrames(fifo.CapacityForBlock(burst, e.callbackSize))
	if err != nil {
		e.log.Warn("set buffer size failed", logger.Error(err))
		return
	}
	e.log.Debug("output buffer sized",
		logger.Int("frames_per_burst", burst),
		logger.Int("buffer_size", size))
}

func (e *Engine) framesPerBlock(s audiocore.Stream) int {
	if e.callbackSize > 0 {
		return e.callbackSize
	}
	return s.FramesPerBurst()
}

func (e *Engine) startLoopLocked(s audiocore.Stream) {
	e.loop = startBlockingLoop(s, e.proxyFor(s.Config().IsInput()), e.framesPerBlock(s), e.loopExited)
	e.log.Debug("blocking I/O loop started",
		logger.String("direction", s.Config().Direction.String()),
		logger.Int("frames_per_block", e.loop.framesPerBlock))
}

// loopExited runs on the loop goroutine. It must not take the engine lock.
func (e *Engine) loopExited(reason string, err error) {
	e.recorder.RecordLoopExit(reason)
	if err != nil {
		e.log.Warn("blocking I/O loop exited", logger.String("reason", reason), logger.Error(err))
	} else {
		e.log.Debug("blocking I/O loop exited", logger.String("reason", reason))
	}
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) stopLoopLocked() {
	if e.loop == nil {
		return
	}
	e.loop.stop()
	e.loop = nil
}

// Stop ends the blocking loop, then requests every open stream to stop.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopLocked()
}

func (e *Engine) stopLocked() error {
	e.stopLoopLocked()
	var errs []error
	for h, s := range e.openStreams() {
		if err := s.RequestStop(); err != nil {
			errs = append(errs, engineError(err, "stop").Context("handle", h).Build())
		}
	}
	return errors.Join(errs...)
}

// Pause ends the blocking loop and pauses every running stream.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLoopLocked()
	var errs []error
	for h, s := range e.openStreams() {
		switch s.State() {
		case audiocore.StateStarting, audiocore.StateStarted:
		default:
			continue
		}
		if err := s.RequestPause(); err != nil {
			errs = append(errs, engineError(err, "pause").Context("handle", h).Build())
		}
	}
	return errors.Join(errs...)
}

// Close stops the blocking loop, closes the stream and drops the graph.
func (e *Engine) Close(handle int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked(handle)
}

func (e *Engine) closeLocked(handle int) error {
	s, err := e.table.Get(handle)
	if err != nil {
		return err
	}
	e.stopLoopLocked()
	e.sampleLocked(s)
	delete(e.counters, s)

	err = e.table.Close(handle)
	e.inputProxy.setTarget(nil)
	e.outputProxy.setTarget(nil)
	e.tones, e.echo, e.player = nil, nil, nil
	e.log.Debug("stream released", logger.Int("handle", handle))
	return err
}

// CloseAll closes every open stream.
func (e *Engine) CloseAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for _, h := range e.table.Handles() {
		if err := e.closeLocked(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Poll reaps a blocking loop that has exited, closes streams that reported
// Disconnected and reports statistics. It returns the handles it closed.
func (e *Engine) Poll() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loop != nil && !e.loop.running() {
		e.loop.stop()
		e.loop = nil
	}

	var closed []int
	for h, s := range e.openStreams() {
		if s.State() != audiocore.StateDisconnected {
			e.sampleLocked(s)
			continue
		}
		e.log.Warn("stream disconnected, closing", logger.Int("handle", h))
		if err := e.closeLocked(h); err != nil {
			e.log.Warn("close after disconnect failed", logger.Int("handle", h), logger.Error(err))
		}
		closed = append(closed, h)
	}
	return closed
}

// Run polls until ctx is done, and immediately after the blocking loop
// exits. It does not close streams on return.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-e.wake:
		}
		e.Poll()
	}
}

// Status returns a snapshot of the engine and its streams.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		Activity:    e.activity.String(),
		ToneType:    e.toneType.String(),
		Callbacks:   e.inputProxy.callbacks() + e.outputProxy.callbacks(),
		LoopRunning: e.loop != nil && e.loop.running(),
	}
	for _, h := range e.table.Handles() {
		if s, err := e.table.Get(h); err == nil {
			st.Streams = append(st.Streams, describeStream(h, s))
		}
	}
	if e.analyzer != nil {
		st.Peaks = e.analyzer.Peaks()
	}
	if e.recording != nil {
		st.RecordedFrames = e.recording.Frames()
	}
	return st
}
