package stream

import (
	"time"

	"github.com/tphakala/audiostream/internal/audiocore"
)

// nativeStream forwards to a driver stream that supports the requested mode
// directly.
type nativeStream struct {
	base
	native audiocore.NativeStream
	self   audiocore.Stream
}

func newNativeStream(driver audiocore.Driver, cfg audiocore.StreamConfig, cb audiocore.DataCallback, obs Observer) (*nativeStream, error) {
	s := &nativeStream{}
	s.self = s

	req := audiocore.NativeRequest{Config: cfg}
	if cb != nil {
		req.Callback = s.onAudio
	}
	native, err := driver.Open(req)
	if err != nil {
		return nil, err
	}
	s.native = native
	s.init(native.Config(), native, native.FramesPerBurst(), native.BufferCapacityInFrames(), cb, obs)
	if sizer, ok := native.(audiocore.BufferSizer); ok {
		s.resize = sizer.SetBufferSizeInFrames
	}
	return s, nil
}

// onAudio runs on the driver's audio thread.
func (s *nativeStream) onAudio(data []byte, numFrames int) audiocore.CallbackResult {
	s.callbackCount.Add(1)
	result := s.callback.OnAudioReady(s.self, data, numFrames)
	s.countFrames(numFrames)
	return result
}

func (s *nativeStream) UsesConversion() bool { return false }

func (s *nativeStream) XRunCount() int64 { return s.native.XRunCount() }

func (s *nativeStream) Read(buf []byte, numFrames int, timeout time.Duration) (int, error) {
	if err := s.checkTransfer(true); err != nil {
		return 0, err
	}
	n, err := s.native.Read(buf, numFrames, timeout)
	s.framesRead.Add(int64(n))
	return n, s.mapTransferError(err)
}

func (s *nativeStream) Write(buf []byte, numFrames int, timeout time.Duration) (int, error) {
	if err := s.checkTransfer(false); err != nil {
		return 0, err
	}
	n, err := s.native.Write(buf, numFrames, timeout)
	s.framesWritten.Add(int64(n))
	return n, s.mapTransferError(err)
}

func (s *nativeStream) mapTransferError(err error) error {
	if err == nil {
		return nil
	}
	if s.native.State() == audiocore.StateDisconnected {
		s.setState(audiocore.StateDisconnected)
		return disconnected("transfer")
	}
	return err
}
