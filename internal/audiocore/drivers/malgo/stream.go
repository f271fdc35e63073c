package malgo

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

// device is the part of *malgo.Device used here.
type device interface {
	Start() error
	Stop() error
	Uninit()
}

// Stream is an open miniaudio device.
type Stream struct {
	cfg      audiocore.StreamConfig
	burst    int
	callback audiocore.NativeCallback
	dev      device

	state atomic.Int32

	// mu serializes requests with close and the stop watcher. The device
	// stop callback never takes it.
	mu sync.Mutex

	stopReq   chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newStream(cb audiocore.NativeCallback) *Stream {
	s := &Stream{
		callback: cb,
		stopReq:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.state.Store(int32(audiocore.StateUninitialized))
	return s
}

func (s *Stream) attach(cfg audiocore.StreamConfig, burst int, dev device) {
	s.cfg = cfg
	s.burst = burst
	s.dev = dev
	s.state.Store(int32(audiocore.StateOpen))
	s.wg.Add(1)
	go s.watchStops()
}

func (s *Stream) watchStops() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.stopReq:
			s.mu.Lock()
			if s.State() == audiocore.StateStopping {
				if err := s.dev.Stop(); err != nil {
					GetLogger().Warn("stop after callback request failed", logger.Error(err))
				}
				s.state.Store(int32(audiocore.StateStopped))
			}
			s.mu.Unlock()
		}
	}
}

func (s *Stream) Config() audiocore.StreamConfig { return s.cfg }
func (s *Stream) FramesPerBurst() int            { return s.burst }
func (s *Stream) BufferCapacityInFrames() int    { return s.burst * 2 }
func (s *Stream) State() audiocore.State         { return audiocore.State(s.state.Load()) }

// XRunCount is not reported by miniaudio.
func (s *Stream) XRunCount() int64 { return 0 }

// onData is the miniaudio data callback. Buffers are already in the
// stream's format.
func (s *Stream) onData(out, in []byte, frameCount uint32) {
	n := int(frameCount)
	if s.State() != audiocore.StateStarted {
		clear(out)
		return
	}
	var result audiocore.CallbackResult
	if s.cfg.IsInput() {
		result = s.callback(in[:n*s.cfg.BytesPerFrame()], n)
	} else {
		data := out[:n*s.cfg.BytesPerFrame()]
		audiocore.Silence(data)
		result = s.callback(data, n)
	}
	if result == audiocore.CallbackStop &&
		s.state.CompareAndSwap(int32(audiocore.StateStarted), int32(audiocore.StateStopping)) {
		select {
		case s.stopReq <- struct{}{}:
		default:
		}
	}
}

// onStop runs when the device stops. A stop nobody asked for means the
// device went away.
func (s *Stream) onStop() {
	if s.state.CompareAndSwap(int32(audiocore.StateStarted), int32(audiocore.StateDisconnected)) {
		GetLogger().Warn("device stopped unexpectedly", logger.String("direction", s.cfg.Direction.String()))
	}
}

func (s *Stream) check(op string, allowed ...audiocore.State) (audiocore.State, error) {
	cur := s.State()
	if cur == audiocore.StateDisconnected {
		return cur, errors.New(audiocore.ErrDisconnected).Component("malgo").Context("operation", op).Build()
	}
	for _, st := range allowed {
		if cur == st {
			return cur, nil
		}
	}
	return cur, errors.New(audiocore.ErrInvalidState).
		Component("malgo").
		Context("operation", op).
		Context("state", cur.String()).
		Build()
}

func (s *Stream) backendError(op string, prev audiocore.State, err error) error {
	s.state.Store(int32(prev))
	return errors.New(err).
		Component("malgo").
		Category(errors.CategoryAudioBackend).
		Context("operation", op).
		Build()
}

func (s *Stream) RequestStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.check("start", audiocore.StateOpen, audiocore.StatePaused, audiocore.StateStopped, audiocore.StateFlushed)
	if err != nil {
		return err
	}
	// Started before the device runs so the first callback is served
	s.state.Store(int32(audiocore.StateStarted))
	if err := s.dev.Start(); err != nil {
		return s.backendError("start", cur, err)
	}
	return nil
}

// RequestPause stops the device; miniaudio has no pause.
func (s *Stream) RequestPause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.check("pause", audiocore.StateStarting, audiocore.StateStarted)
	if err != nil {
		return err
	}
	s.state.Store(int32(audiocore.StatePausing))
	if err := s.dev.Stop(); err != nil {
		return s.backendError("pause", cur, err)
	}
	s.state.Store(int32(audiocore.StatePaused))
	return nil
}

func (s *Stream) RequestStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.check("stop",
		audiocore.StateStarting, audiocore.StateStarted, audiocore.StatePausing, audiocore.StatePaused, audiocore.StateStopping)
	if err != nil {
		return err
	}
	s.state.Store(int32(audiocore.StateStopping))
	if cur != audiocore.StatePaused {
		if err := s.dev.Stop(); err != nil {
			return s.backendError("stop", cur, err)
		}
	}
	s.state.Store(int32(audiocore.StateStopped))
	return nil
}

func (s *Stream) Read([]byte, int, time.Duration) (int, error) {
	return 0, errors.New(audiocore.ErrUnimplemented).Component("malgo").Context("operation", "read").Build()
}

func (s *Stream) Write([]byte, int, time.Duration) (int, error) {
	return 0, errors.New(audiocore.ErrUnimplemented).Component("malgo").Context("operation", "write").Build()
}

// Close uninitializes the device. It is idempotent.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()

		s.mu.Lock()
		defer s.mu.Unlock()
		s.state.Store(int32(audiocore.StateClosing))
		s.dev.Uninit()
		s.state.Store(int32(audiocore.StateClosed))
	})
	return nil
}
