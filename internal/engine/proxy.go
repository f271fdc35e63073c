package engine

import (
	"sync/atomic"

	"github.com/tphakala/audiostream/internal/audiocore"
)

// callbackTarget boxes a DataCallback so it can be swapped atomically.
type callbackTarget struct {
	cb audiocore.DataCallback
}

// callbackProxy is the callback a stream is opened with. The graph it
// forwards to is only known once the stream negotiated its channel count,
// so the target is set later and may change between starts.
type callbackProxy struct {
	target     atomic.Pointer[callbackTarget]
	returnStop atomic.Bool
	count      atomic.Int64
}

// setTarget installs cb, or removes the target with nil.
func (p *callbackProxy) setTarget(cb audiocore.DataCallback) {
	if cb == nil {
		p.target.Store(nil)
		return
	}
	p.target.Store(&callbackTarget{cb: cb})
}

// setReturnStop makes the next callback return CallbackStop once.
func (p *callbackProxy) setReturnStop(stop bool) {
	p.returnStop.Store(stop)
}

// callbacks returns how many times the proxy ran.
func (p *callbackProxy) callbacks() int64 {
	return p.count.Load()
}

// OnAudioReady forwards to the target. Without a target output is silent.
func (p *callbackProxy) OnAudioReady(s audiocore.Stream, data []byte, numFrames int) audiocore.CallbackResult {
	p.count.Add(1)
	if p.returnStop.CompareAndSwap(true, false) {
		return audiocore.CallbackStop
	}
	t := p.target.Load()
	if t == nil {
		if !s.Config().IsInput() {
			audiocore.Silence(data[:numFrames*s.Config().BytesPerFrame()])
		}
		return audiocore.CallbackContinue
	}
	return t.cb.OnAudioReady(s, data, numFrames)
}
