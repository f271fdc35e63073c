package simulated

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/fifo"
	"github.com/tphakala/audiostream/internal/errors"
)

// Stream is one simulated device stream.
type Stream struct {
	cfg      audiocore.StreamConfig
	opts     Options
	burst    int
	callback audiocore.NativeCallback

	state atomic.Int32

	// mu serializes ticks with state requests and close.
	mu       sync.Mutex
	data     []byte
	samples  []float32
	frame    int64
	captured []float32
	ticks    int64

	// blocking mode device buffer
	buffer *fifo.FIFO

	stopTicker chan struct{}
	tickerWG   sync.WaitGroup
	tickerOn   bool
	closeOnce  sync.Once
}

func newStream(cfg audiocore.StreamConfig, opts Options, cb audiocore.NativeCallback) (*Stream, error) {
	burst := opts.FramesPerBurst
	if cfg.FramesPerCallback > 0 && cb != nil {
		burst = cfg.FramesPerCallback
	}
	s := &Stream{
		cfg:        cfg,
		opts:       opts,
		burst:      burst,
		callback:   cb,
		data:       make([]byte, burst*cfg.BytesPerFrame()),
		samples:    make([]float32, burst*cfg.ChannelCount),
		stopTicker: make(chan struct{}),
	}
	if cb == nil {
		buf, err := fifo.New(fifo.CapacityForBlock(burst, cfg.FramesPerCallback), cfg.BytesPerFrame())
		if err != nil {
			return nil, err
		}
		s.buffer = buf
	}
	s.state.Store(int32(audiocore.StateOpen))
	return s, nil
}

// Config returns the negotiated configuration.
func (s *Stream) Config() audiocore.StreamConfig { return s.cfg }

// FramesPerBurst returns the period size.
func (s *Stream) FramesPerBurst() int { return s.burst }

// BufferCapacityInFrames returns the device buffer capacity.
func (s *Stream) BufferCapacityInFrames() int {
	if s.buffer != nil {
		return s.buffer.CapacityFrames()
	}
	return s.burst * fifo.DefaultBurstMultiple
}

// SetBufferSizeInFrames bounds how far blocking writes fill the device
// buffer. Callback streams have no such buffer and keep n as given.
func (s *Stream) SetBufferSizeInFrames(n int) (int, error) {
	if st := s.State(); st == audiocore.StateClosed || st == audiocore.StateClosing {
		return 0, errors.New(audiocore.ErrInvalidState).Component("simulated").Context("state", st.String()).Build()
	}
	if s.buffer == nil {
		return n, nil
	}
	return s.buffer.SetLimit(n), nil
}

// State returns the device state.
func (s *Stream) State() audiocore.State { return audiocore.State(s.state.Load()) }

// UsesCallback reports whether the stream was opened in callback mode.
func (s *Stream) UsesCallback() bool { return s.callback != nil }

func (s *Stream) request(target audiocore.State, from ...audiocore.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.State()
	switch cur {
	case audiocore.StateDisconnected:
		return errors.New(audiocore.ErrDisconnected).Component("simulated").Build()
	case audiocore.StateClosed, audiocore.StateClosing:
		return errors.New(audiocore.ErrInvalidState).
			Component("simulated").
			Context("state", cur.String()).
			Build()
	}
	for _, f := range from {
		if cur == f {
			s.state.Store(int32(target))
			if target == audiocore.StateStarting {
				s.startTickerLocked()
			}
			return nil
		}
	}
	return errors.New(audiocore.ErrInvalidState).
		Component("simulated").
		Context("state", cur.String()).
		Context("target", target.String()).
		Build()
}

// RequestStart begins starting; the start is acknowledged on the next tick.
func (s *Stream) RequestStart() error {
	return s.request(audiocore.StateStarting,
		audiocore.StateOpen, audiocore.StatePaused, audiocore.StateStopped, audiocore.StateFlushed)
}

// RequestPause begins pausing.
func (s *Stream) RequestPause() error {
	return s.request(audiocore.StatePausing, audiocore.StateStarting, audiocore.StateStarted)
}

// RequestStop begins stopping.
func (s *Stream) RequestStop() error {
	return s.request(audiocore.StateStopping,
		audiocore.StateStarting, audiocore.StateStarted, audiocore.StatePausing, audiocore.StatePaused)
}

// Tick advances the device by n periods: pending requests are acknowledged
// and a started stream moves one burst per period.
func (s *Stream) Tick(n int) {
	for range n {
		s.tick()
	}
}

// Ticks returns the number of periods elapsed.
func (s *Stream) Ticks() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

func (s *Stream) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks++
	switch s.State() {
	case audiocore.StateStarting:
		s.state.Store(int32(audiocore.StateStarted))
	case audiocore.StatePausing:
		s.state.Store(int32(audiocore.StatePaused))
		return
	case audiocore.StateStopping:
		s.state.Store(int32(audiocore.StateStopped))
		return
	case audiocore.StateStarted:
	default:
		return
	}

	if s.callback != nil {
		s.runCallbackLocked()
	} else {
		s.runDeviceLocked()
	}
}

func (s *Stream) runCallbackLocked() {
	frames := s.burst
	if s.cfg.IsInput() {
		s.synthesizeLocked(frames)
		audiocore.Encode(s.cfg.Format, s.data, s.samples)
	} else {
		audiocore.Silence(s.data)
	}

	result := s.callback(s.data, frames)

	if !s.cfg.IsInput() {
		audiocore.Decode(s.cfg.Format, s.samples, s.data)
		s.captureLocked(s.samples)
	}
	s.frame += int64(frames)
	if result == audiocore.CallbackStop {
		s.state.Store(int32(audiocore.StateStopping))
	}
}

func (s *Stream) runDeviceLocked() {
	frames := s.burst
	if s.cfg.IsInput() {
		s.synthesizeLocked(frames)
		audiocore.Encode(s.cfg.Format, s.data, s.samples)
		s.buffer.StoreInput(s.data, frames)
	} else {
		s.buffer.FillOutput(s.data, frames)
		audiocore.Decode(s.cfg.Format, s.samples, s.data)
		s.captureLocked(s.samples)
	}
	s.frame += int64(frames)
}

func (s *Stream) synthesizeLocked(frames int) {
	ch := s.cfg.ChannelCount
	for i := range frames {
		for c := range ch {
			s.samples[i*ch+c] = s.opts.Input(s.frame+int64(i), c)
		}
	}
}

func (s *Stream) captureLocked(samples []float32) {
	room := s.opts.CaptureFrames*s.cfg.ChannelCount - len(s.captured)
	if room <= 0 {
		return
	}
	s.captured = append(s.captured, samples[:min(room, len(samples))]...)
}

// Captured returns a copy of the output rendered so far.
func (s *Stream) Captured() []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float32, len(s.captured))
	copy(out, s.captured)
	return out
}

// ResetCapture discards captured output.
func (s *Stream) ResetCapture() {
	s.mu.Lock()
	s.captured = s.captured[:0]
	s.mu.Unlock()
}

// Read reads captured input in blocking mode.
func (s *Stream) Read(buf []byte, numFrames int, timeout time.Duration) (int, error) {
	if err := s.checkTransfer(true); err != nil {
		return 0, err
	}
	n, err := s.buffer.ReadWait(buf, numFrames, timeout)
	return n, s.transferError(err)
}

// Write queues output in blocking mode.
func (s *Stream) Write(buf []byte, numFrames int, timeout time.Duration) (int, error) {
	if err := s.checkTransfer(false); err != nil {
		return 0, err
	}
	n, err := s.buffer.WriteWait(buf, numFrames, timeout)
	return n, s.transferError(err)
}

func (s *Stream) checkTransfer(read bool) error {
	switch st := s.State(); st {
	case audiocore.StateDisconnected:
		return errors.New(audiocore.ErrDisconnected).Component("simulated").Build()
	case audiocore.StateClosed, audiocore.StateClosing:
		return errors.New(audiocore.ErrInvalidState).Component("simulated").Context("state", st.String()).Build()
	}
	if s.buffer == nil || read != s.cfg.IsInput() {
		return errors.New(audiocore.ErrInvalidState).
			Component("simulated").
			Context("direction", s.cfg.Direction.String()).
			Context("callback", s.callback != nil).
			Build()
	}
	return nil
}

func (s *Stream) transferError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fifo.ErrClosed) && s.State() == audiocore.StateDisconnected {
		return errors.New(audiocore.ErrDisconnected).Component("simulated").Build()
	}
	return err
}

// XRunCount returns device buffer under/overruns in blocking mode.
func (s *Stream) XRunCount() int64 {
	if s.buffer == nil {
		return 0
	}
	return s.buffer.XRunCount()
}

// Disconnect simulates the device going away.
func (s *Stream) Disconnect() {
	s.mu.Lock()
	st := s.State()
	if st != audiocore.StateClosed && st != audiocore.StateClosing {
		s.state.Store(int32(audiocore.StateDisconnected))
	}
	s.mu.Unlock()
	if s.buffer != nil {
		s.buffer.Close()
	}
}

// Close stops the ticker and releases the stream. It is idempotent.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopTicker)
		s.tickerWG.Wait()

		s.mu.Lock()
		s.state.Store(int32(audiocore.StateClosed))
		s.mu.Unlock()
		if s.buffer != nil {
			s.buffer.Close()
		}
	})
	return nil
}

func (s *Stream) startTickerLocked() {
	if !s.opts.Realtime || s.tickerOn {
		return
	}
	s.tickerOn = true
	period := burstPeriod(s.burst, s.cfg.SampleRate)
	s.tickerWG.Add(1)
	go func() {
		defer s.tickerWG.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopTicker:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}
