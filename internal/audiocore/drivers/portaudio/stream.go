package portaudio

import (
	"sync"
	"sync/atomic"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

// paStream is the part of *pa.Stream used here.
type paStream interface {
	Start() error
	Stop() error
	Close() error
	Read() error
	Write() error
	AvailableToRead() (int, error)
	AvailableToWrite() (int, error)
}

// Stream is an open PortAudio stream.
type Stream struct {
	cfg      audiocore.StreamConfig
	burst    int
	callback audiocore.NativeCallback
	poll     time.Duration
	native   paStream

	state atomic.Int32
	xruns atomic.Int64

	// mu serializes state requests with close and the stop watcher.
	mu sync.Mutex

	// callback scratch
	data []byte

	// blocking mode: device is the buffer PortAudio reads into or writes
	// from; pending stages one burst in the stream format.
	ioMu       sync.Mutex
	device     []float32
	pending    []byte
	pendingOff int
	pendingLen int

	stopReq   chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newStream(cfg audiocore.StreamConfig, burst int, cb audiocore.NativeCallback, poll time.Duration) *Stream {
	s := &Stream{
		cfg:      cfg,
		burst:    burst,
		callback: cb,
		poll:     poll,
		stopReq:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if cb != nil {
		s.data = make([]byte, burst*cfg.BytesPerFrame())
	} else {
		s.device = make([]float32, burst*cfg.ChannelCount)
		s.pending = make([]byte, burst*cfg.BytesPerFrame())
	}
	s.state.Store(int32(audiocore.StateOpen))
	return s
}

func (s *Stream) attach(native paStream) {
	s.native = native
	if s.callback != nil {
		s.wg.Add(1)
		go s.watchStops()
	}
}

// watchStops stops the stream off the audio thread after the callback
// asked for it.
func (s *Stream) watchStops() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.stopReq:
			s.mu.Lock()
			if s.State() == audiocore.StateStopping {
				if err := s.native.Stop(); err != nil {
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
func (s *Stream) XRunCount() int64               { return s.xruns.Load() }

// process is the PortAudio callback.
func (s *Stream) process(in, out []float32, _ pa.StreamCallbackTimeInfo, flags pa.StreamCallbackFlags) {
	if flags&(pa.OutputUnderflow|pa.InputOverflow) != 0 {
		s.xruns.Add(1)
	}
	ch := s.cfg.ChannelCount
	bpf := s.cfg.BytesPerFrame()
	if s.State() != audiocore.StateStarted {
		clear(out)
		return
	}

	var result audiocore.CallbackResult
	if s.cfg.IsInput() {
		n := len(in) / ch
		if n*bpf > len(s.data) {
			return
		}
		data := s.data[:n*bpf]
		audiocore.Encode(s.cfg.Format, data, in)
		result = s.callback(data, n)
	} else {
		n := len(out) / ch
		if n*bpf > len(s.data) {
			clear(out)
			return
		}
		data := s.data[:n*bpf]
		audiocore.Silence(data)
		result = s.callback(data, n)
		audiocore.Decode(s.cfg.Format, out, data)
	}

	if result == audiocore.CallbackStop &&
		s.state.CompareAndSwap(int32(audiocore.StateStarted), int32(audiocore.StateStopping)) {
		select {
		case s.stopReq <- struct{}{}:
		default:
		}
	}
}

func (s *Stream) request(op string, allowed ...audiocore.State) (audiocore.State, error) {
	cur := s.State()
	switch cur {
	case audiocore.StateDisconnected:
		return cur, errors.New(audiocore.ErrDisconnected).Component("portaudio").Context("operation", op).Build()
	case audiocore.StateClosing, audiocore.StateClosed:
		return cur, errors.New(audiocore.ErrInvalidState).
			Component("portaudio").
			Context("operation", op).
			Context("state", cur.String()).
			Build()
	}
	for _, st := range allowed {
		if cur == st {
			return cur, nil
		}
	}
	return cur, errors.New(audiocore.ErrInvalidState).
		Component("portaudio").
		Context("operation", op).
		Context("state", cur.String()).
		Build()
}

// RequestStart starts the stream. PortAudio starts synchronously.
func (s *Stream) RequestStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.request("start", audiocore.StateOpen, audiocore.StatePaused, audiocore.StateStopped, audiocore.StateFlushed)
	if err != nil {
		return err
	}
	s.state.Store(int32(audiocore.StateStarting))
	if err := s.native.Start(); err != nil {
		return s.failRequest("start", cur, err)
	}
	s.state.Store(int32(audiocore.StateStarted))
	return nil
}

// RequestPause stops the stream and reports Paused.
func (s *Stream) RequestPause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.request("pause", audiocore.StateStarting, audiocore.StateStarted)
	if err != nil {
		return err
	}
	s.state.Store(int32(audiocore.StatePausing))
	if err := s.native.Stop(); err != nil {
		return s.failRequest("pause", cur, err)
	}
	s.state.Store(int32(audiocore.StatePaused))
	return nil
}

func (s *Stream) RequestStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.request("stop",
		audiocore.StateStarting, audiocore.StateStarted, audiocore.StatePausing, audiocore.StatePaused, audiocore.StateStopping)
	if err != nil {
		return err
	}
	s.state.Store(int32(audiocore.StateStopping))
	if cur != audiocore.StatePaused {
		if err := s.native.Stop(); err != nil {
			return s.failRequest("stop", cur, err)
		}
	}
	s.state.Store(int32(audiocore.StateStopped))
	return nil
}

func (s *Stream) failRequest(op string, prev audiocore.State, err error) error {
	if isDeviceLost(err) {
		s.state.Store(int32(audiocore.StateDisconnected))
		return errors.New(audiocore.ErrDisconnected).
			Component("portaudio").
			Context("operation", op).
			Context("cause", err.Error()).
			Build()
	}
	s.state.Store(int32(prev))
	return errors.New(err).
		Component("portaudio").
		Category(errors.CategoryAudioBackend).
		Context("operation", op).
		Build()
}

func isDeviceLost(err error) bool {
	return errors.Is(err, pa.DeviceUnavailable) || errors.Is(err, pa.UnanticipatedHostError)
}

func isXRun(err error) bool {
	return errors.Is(err, pa.InputOverflowed) || errors.Is(err, pa.OutputUnderflowed)
}

func (s *Stream) checkTransfer(read bool) error {
	switch st := s.State(); st {
	case audiocore.StateDisconnected:
		return errors.New(audiocore.ErrDisconnected).Component("portaudio").Build()
	case audiocore.StateClosing, audiocore.StateClosed:
		return errors.New(audiocore.ErrInvalidState).Component("portaudio").Context("state", st.String()).Build()
	}
	if s.callback != nil || read != s.cfg.IsInput() {
		return errors.New(audiocore.ErrInvalidState).
			Component("portaudio").
			Context("direction", s.cfg.Direction.String()).
			Context("callback", s.callback != nil).
			Build()
	}
	return nil
}

// ready reports whether a whole burst can move without blocking.
func (s *Stream) ready(read bool) (bool, error) {
	if s.State() != audiocore.StateStarted {
		return false, nil
	}
	var (
		avail int
		err   error
	)
	if read {
		avail, err = s.native.AvailableToRead()
	} else {
		avail, err = s.native.AvailableToWrite()
	}
	if err != nil {
		return false, s.transferError(err)
	}
	return avail >= s.burst, nil
}

// wait sleeps one poll interval unless the deadline has passed.
func (s *Stream) wait(deadline time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	time.Sleep(min(s.poll, remaining))
	return true
}

func (s *Stream) transferError(err error) error {
	if isDeviceLost(err) {
		s.state.Store(int32(audiocore.StateDisconnected))
		return errors.New(audiocore.ErrDisconnected).Component("portaudio").Context("cause", err.Error()).Build()
	}
	return errors.New(err).Component("portaudio").Category(errors.CategoryAudioBackend).Build()
}

func (s *Stream) finish(done int, timeout time.Duration, err error) (int, error) {
	if done > 0 {
		return done, nil
	}
	if err != nil {
		return 0, err
	}
	if timeout > 0 {
		return 0, errors.New(audiocore.ErrTimeout).
			Component("portaudio").
			Context("timeout", timeout.String()).
			Build()
	}
	return 0, nil
}

// Read reads captured frames, one PortAudio burst at a time.
func (s *Stream) Read(buf []byte, numFrames int, timeout time.Duration) (int, error) {
	if err := s.checkTransfer(true); err != nil {
		return 0, err
	}
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	bpf := s.cfg.BytesPerFrame()
	deadline := time.Now().Add(timeout)
	done := 0
	for done < numFrames {
		if s.pendingOff < s.pendingLen {
			n := min(numFrames-done, s.pendingLen-s.pendingOff)
			copy(buf[done*bpf:(done+n)*bpf], s.pending[s.pendingOff*bpf:])
			s.pendingOff += n
			done += n
			continue
		}
		ok, err := s.ready(true)
		if err != nil {
			return s.finish(done, timeout, err)
		}
		if !ok {
			if !s.wait(deadline, timeout) {
				break
			}
			continue
		}
		if err := s.native.Read(); err != nil {
			if !isXRun(err) {
				return s.finish(done, timeout, s.transferError(err))
			}
			s.xruns.Add(1)
		}
		audiocore.Encode(s.cfg.Format, s.pending, s.device)
		s.pendingOff, s.pendingLen = 0, s.burst
	}
	return s.finish(done, timeout, nil)
}

// Write stages frames and hands PortAudio one burst at a time. A partial
// burst stays staged until the next Write.
func (s *Stream) Write(buf []byte, numFrames int, timeout time.Duration) (int, error) {
	if err := s.checkTransfer(false); err != nil {
		return 0, err
	}
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	bpf := s.cfg.BytesPerFrame()
	deadline := time.Now().Add(timeout)
	done := 0
	for done < numFrames || s.pendingLen == s.burst {
		if s.pendingLen == s.burst {
			ok, err := s.ready(false)
			if err != nil {
				return s.finish(done, timeout, err)
			}
			if !ok {
				if !s.wait(deadline, timeout) {
					break
				}
				continue
			}
			audiocore.Decode(s.cfg.Format, s.device, s.pending)
			if err := s.native.Write(); err != nil {
				if !isXRun(err) {
					return s.finish(done, timeout, s.transferError(err))
				}
				s.xruns.Add(1)
			}
			s.pendingLen = 0
			continue
		}
		n := min(numFrames-done, s.burst-s.pendingLen)
		copy(s.pending[s.pendingLen*bpf:], buf[done*bpf:(done+n)*bpf])
		s.pendingLen += n
		done += n
	}
	return s.finish(done, timeout, nil)
}

// Close stops the watcher and closes the PortAudio stream. It is idempotent.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()

		s.mu.Lock()
		defer s.mu.Unlock()
		s.state.Store(int32(audiocore.StateClosing))
		if cerr := s.native.Close(); cerr != nil {
			err = errors.New(cerr).
				Component("portaudio").
				Category(errors.CategoryAudioBackend).
				Context("operation", "close").
				Build()
		}
		s.state.Store(int32(audiocore.StateClosed))
	})
	return err
}
