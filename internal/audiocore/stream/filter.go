package stream

import (
	"sync/atomic"
	"time"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/flowgraph"
	"github.com/tphakala/audiostream/internal/audiocore/processors"
	"github.com/tphakala/audiostream/internal/audiocore/resampler"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

// childOpener opens the backend-facing stream of a filter.
type childOpener func(cfg audiocore.StreamConfig, cb audiocore.DataCallback) (audiocore.Stream, error)

// filterStream presents the caller's requested format, channel count and
// rate over a child stream opened with a quirk-adjusted config.
//
// Output chain: app source, channel count converter, rate converter, child
// sink. Input chain: child source, rate converter, channel count converter,
// app sink. Converters are left out when both sides agree.
type filterStream struct {
	base
	child    audiocore.Stream
	childCfg audiocore.StreamConfig

	// Exactly one of source and pull heads the chain.
	source *processors.Source
	pull   *processors.FuncSource
	sink   *processors.Sink

	// scratch holds child frames (output) or app frames (input callback).
	scratch    []byte
	pendingOff int
	pendingLen int

	// set on the audio thread when the app callback returns stop
	stopRequested atomic.Bool

	// blocking read state
	readTimeout  time.Duration
	readDeadline time.Time
	readErr      error
}

func newFilterStream(requested, adjusted audiocore.StreamConfig, cb audiocore.DataCallback, open childOpener, obs Observer) (*filterStream, error) {
	s := &filterStream{}

	var childCb audiocore.DataCallback
	if cb != nil {
		childCb = audiocore.DataCallbackFunc(s.onChildAudio)
	}
	child, err := open(adjusted, childCb)
	if err != nil {
		return nil, err
	}
	s.child = child
	s.childCfg = child.Config()

	app := requested
	app.API = s.childCfg.API
	if app.SampleRate == audiocore.Unspecified {
		app.SampleRate = s.childCfg.SampleRate
	}
	if app.ChannelCount == audiocore.Unspecified {
		app.ChannelCount = s.childCfg.ChannelCount
	}
	if app.Format == audiocore.FormatUnspecified {
		app.Format = s.childCfg.Format
	}

	// Callback state must exist before the child can call back
	s.callback = cb
	if err := s.buildGraph(app); err != nil {
		_ = child.Close()
		return nil, err
	}
	s.init(app, child, child.FramesPerBurst(), child.BufferCapacityInFrames(), cb, obs)

	s.log.Debug("conversion stream opened",
		logger.String("app", app.String()),
		logger.String("child", s.childCfg.String()))
	return s, nil
}

func (s *filterStream) buildGraph(app audiocore.StreamConfig) error {
	child := s.childCfg
	callback := s.callback != nil

	var port *flowgraph.OutputPort
	if app.IsInput() {
		if callback {
			s.source = processors.NewSource(child.Format, child.ChannelCount)
			port = s.source.Output
		} else {
			s.pull = processors.NewFuncSource(child.Format, child.ChannelCount, s.readChild)
			port = s.pull.Output
		}
		var err error
		if port, err = addRateConverter(port, child.ChannelCount, child.SampleRate, app.SampleRate); err != nil {
			return err
		}
		port = addChannelConverter(port, child.ChannelCount, app.ChannelCount)
		s.sink = processors.NewSink(app.Format, app.ChannelCount)
		s.scratch = make([]byte, flowgraph.MaxFrames*app.BytesPerFrame())
	} else {
		if callback {
			s.pull = processors.NewFuncSource(app.Format, app.ChannelCount, s.pullApp)
			port = s.pull.Output
		} else {
			s.source = processors.NewSource(app.Format, app.ChannelCount)
			port = s.source.Output
		}
		port = addChannelConverter(port, app.ChannelCount, child.ChannelCount)
		var err error
		if port, err = addRateConverter(port, child.ChannelCount, app.SampleRate, child.SampleRate); err != nil {
			return err
		}
		s.sink = processors.NewSink(child.Format, child.ChannelCount)
		s.scratch = make([]byte, flowgraph.MaxFrames*child.BytesPerFrame())
	}
	port.Connect(s.sink.Input)
	return nil
}

func addChannelConverter(port *flowgraph.OutputPort, from, to int) *flowgraph.OutputPort {
	if from == to {
		return port
	}
	c := processors.NewChannelCountConverter(from, to)
	port.Connect(c.Input)
	return c.Output
}

func addRateConverter(port *flowgraph.OutputPort, channels, from, to int) (*flowgraph.OutputPort, error) {
	if from == to {
		return port, nil
	}
	r, err := resampler.NewLinear(channels, from, to)
	if err != nil {
		return nil, err
	}
	c := processors.NewSampleRateConverter(r)
	port.Connect(c.Input)
	return c.Output, nil
}

func (s *filterStream) UsesConversion() bool { return true }

// ChildConfig returns the configuration the backend actually runs with.
func (s *filterStream) ChildConfig() audiocore.StreamConfig { return s.childCfg }

func (s *filterStream) XRunCount() int64 { return s.child.XRunCount() }

func (s *filterStream) BufferSizeInFrames() int { return s.child.BufferSizeInFrames() }

func (s *filterStream) SetBufferSizeInFrames(n int) (int, error) {
	return s.child.SetBufferSizeInFrames(n)
}

// onChildAudio runs on the audio thread for callback-mode filters.
func (s *filterStream) onChildAudio(_ audiocore.Stream, data []byte, numFrames int) audiocore.CallbackResult {
	if s.config.IsInput() {
		return s.deliverInput(data, numFrames)
	}
	got := s.sink.Read(data, numFrames)
	if got < numFrames {
		bpf := s.childCfg.BytesPerFrame()
		audiocore.Silence(data[got*bpf : numFrames*bpf])
	}
	if s.stopRequested.Load() {
		return audiocore.CallbackStop
	}
	return audiocore.CallbackContinue
}

// pullApp asks the application callback for output frames.
func (s *filterStream) pullApp(buf []byte, numFrames int) int {
	bytes := buf[:numFrames*s.config.BytesPerFrame()]
	if s.stopRequested.Load() {
		audiocore.Silence(bytes)
		return numFrames
	}
	s.callbackCount.Add(1)
	if s.callback.OnAudioReady(s, bytes, numFrames) == audiocore.CallbackStop {
		s.stopRequested.Store(true)
	}
	s.framesWritten.Add(int64(numFrames))
	return numFrames
}

func (s *filterStream) deliverInput(data []byte, numFrames int) audiocore.CallbackResult {
	if s.stopRequested.Load() {
		return audiocore.CallbackStop
	}
	s.source.SetData(data, numFrames)
	for {
		got := s.sink.Read(s.scratch, flowgraph.MaxFrames)
		if got == 0 {
			break
		}
		s.callbackCount.Add(1)
		result := s.callback.OnAudioReady(s, s.scratch[:got*s.config.BytesPerFrame()], got)
		s.framesRead.Add(int64(got))
		if result == audiocore.CallbackStop {
			s.stopRequested.Store(true)
			return audiocore.CallbackStop
		}
		if got < flowgraph.MaxFrames {
			break
		}
	}
	return audiocore.CallbackContinue
}

// RequestStart clears a callback stop so a restarted stream calls back again.
func (s *filterStream) RequestStart() error {
	s.stopRequested.Store(false)
	return s.base.RequestStart()
}

// Start mirrors RequestStart for the blocking helper.
func (s *filterStream) Start(timeout time.Duration) error {
	return s.settle(s.RequestStart, audiocore.StateStarting, timeout)
}

func remainingUntil(deadline time.Time, timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 0
	}
	return max(time.Until(deadline), 0)
}

// readChild feeds the input chain from a blocking child read.
func (s *filterStream) readChild(buf []byte, numFrames int) int {
	n, err := s.child.Read(buf, numFrames, remainingUntil(s.readDeadline, s.readTimeout))
	if err != nil && s.readErr == nil {
		s.readErr = err
	}
	return n
}

func (s *filterStream) Read(buf []byte, numFrames int, timeout time.Duration) (int, error) {
	if err := s.checkTransfer(true); err != nil {
		return 0, err
	}
	s.readTimeout = timeout
	s.readDeadline = time.Now().Add(timeout)
	s.readErr = nil

	got := s.sink.Read(buf, numFrames)
	s.framesRead.Add(int64(got))
	if got > 0 {
		return got, nil
	}
	if s.readErr != nil {
		return 0, s.readErr
	}
	if timeout > 0 {
		return 0, errors.New(audiocore.ErrTimeout).
			Component("stream").
			Context("operation", "read").
			Context("timeout", timeout.String()).
			Build()
	}
	return 0, nil
}

func (s *filterStream) Write(buf []byte, numFrames int, timeout time.Duration) (int, error) {
	if err := s.checkTransfer(false); err != nil {
		return 0, err
	}
	deadline := time.Now().Add(timeout)
	bpf := s.childCfg.BytesPerFrame()
	s.source.SetData(buf, numFrames)

	var writeErr error
	for {
		if s.pendingOff == s.pendingLen {
			if s.source.FramesRemaining() == 0 {
				break
			}
			produced := s.sink.Read(s.scratch, flowgraph.MaxFrames)
			if produced == 0 {
				break
			}
			s.pendingOff, s.pendingLen = 0, produced
		}
		want := s.pendingLen - s.pendingOff
		wrote, err := s.child.Write(s.scratch[s.pendingOff*bpf:], want, remainingUntil(deadline, timeout))
		s.pendingOff += wrote
		if err != nil || wrote < want {
			writeErr = err
			break
		}
	}

	consumed := numFrames - s.source.FramesRemaining()
	s.source.SetData(nil, 0)
	s.framesWritten.Add(int64(consumed))
	if consumed == 0 && writeErr != nil {
		return 0, writeErr
	}
	return consumed, nil
}
