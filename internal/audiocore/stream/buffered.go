package stream

import (
	"time"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/fifo"
	"github.com/tphakala/audiostream/internal/errors"
)

// bufferedStream emulates blocking I/O on a callback-only driver. The
// driver callback drains (output) or fills (input) a FIFO sized from the
// burst and the block size; Read and Write wait on the other end.
type bufferedStream struct {
	base
	native audiocore.NativeStream
	fifo   *fifo.FIFO
}

func newBufferedStream(driver audiocore.Driver, cfg audiocore.StreamConfig, obs Observer) (*bufferedStream, error) {
	s := &bufferedStream{}
	native, err := driver.Open(audiocore.NativeRequest{Config: cfg, Callback: s.onAudio})
	if err != nil {
		return nil, err
	}

	negotiated := native.Config()
	burst := native.FramesPerBurst()
	buf, err := fifo.New(fifo.CapacityForBlock(burst, cfg.FramesPerCallback), negotiated.BytesPerFrame())
	if err != nil {
		_ = native.Close()
		return nil, err
	}
	s.native = native
	s.fifo = buf
	s.init(negotiated, native, burst, buf.CapacityFrames(), nil, obs)
	s.onClose = buf.Close
	s.resize = func(n int) (int, error) { return buf.SetLimit(n), nil }
	return s, nil
}

// onAudio runs on the driver's audio thread. It is only invoked after
// RequestStart, by which time the FIFO exists.
func (s *bufferedStream) onAudio(data []byte, numFrames int) audiocore.CallbackResult {
	s.callbackCount.Add(1)
	if s.config.IsInput() {
		s.fifo.StoreInput(data, numFrames)
	} else {
		s.fifo.FillOutput(data, numFrames)
	}
	return audiocore.CallbackContinue
}

func (s *bufferedStream) UsesConversion() bool { return false }

func (s *bufferedStream) XRunCount() int64 {
	return s.fifo.XRunCount() + s.native.XRunCount()
}

func (s *bufferedStream) Read(buf []byte, numFrames int, timeout time.Duration) (int, error) {
	if err := s.checkTransfer(true); err != nil {
		return 0, err
	}
	n, err := s.fifo.ReadWait(buf, numFrames, timeout)
	s.framesRead.Add(int64(n))
	return n, s.mapTransferError(err)
}

func (s *bufferedStream) Write(buf []byte, numFrames int, timeout time.Duration) (int, error) {
	if err := s.checkTransfer(false); err != nil {
		return 0, err
	}
	n, err := s.fifo.WriteWait(buf, numFrames, timeout)
	s.framesWritten.Add(int64(n))
	return n, s.mapTransferError(err)
}

func (s *bufferedStream) mapTransferError(err error) error {
	if err == nil {
		return nil
	}
	if s.native.State() == audiocore.StateDisconnected {
		s.setState(audiocore.StateDisconnected)
		return disconnected("transfer")
	}
	if errors.Is(err, fifo.ErrClosed) {
		return invalidState("transfer", s.State())
	}
	return err
}
