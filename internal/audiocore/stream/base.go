// Package stream implements the uniform stream abstraction on top of the
// native drivers.
//
// Three variants share one state machine:
//
//   - nativeStream talks to a driver stream directly.
//   - bufferedStream gives a callback-only driver a blocking Read/Write API
//     through a FIFO filled and drained by the driver callback.
//   - filterStream wraps either of the above, opened with a quirk-adjusted
//     config, and converts format, channel count and rate with a flow graph.
//
// Opener picks the variant at open time; Table owns the fixed set of
// handles.
package stream

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

// StatePollInterval is how often WaitForStateChange samples the state.
const StatePollInterval = 10 * time.Millisecond

// lifecycle is the part of a backend the state machine drives. Both native
// driver streams and child streams of a filter satisfy it.
type lifecycle interface {
	State() audiocore.State
	RequestStart() error
	RequestPause() error
	RequestStop() error
	Close() error
}

// base carries the state machine, counters and buffer sizing shared by every
// variant. Control-path methods are serialized by mu; counters are atomics
// updated from the audio thread.
type base struct {
	mu       sync.Mutex
	config   audiocore.StreamConfig
	backend  lifecycle
	observer Observer
	log      logger.Logger

	state atomic.Int32

	burst      int
	capacity   int
	bufferSize atomic.Int32
	// resize applies a clamped buffer size to the variant's buffer.
	resize     func(n int) (int, error)

	callback      audiocore.DataCallback
	callbackCount atomic.Int64
	framesWritten atomic.Int64
	framesRead    atomic.Int64

	// onClose runs before the backend is closed.
	onClose func()
}

func (b *base) init(cfg audiocore.StreamConfig, backend lifecycle, burst, capacity int, cb audiocore.DataCallback, obs Observer) {
	b.config = cfg
	b.backend = backend
	b.callback = cb
	b.observer = obs
	if b.observer == nil {
		b.observer = nopObserver{}
	}
	b.burst = burst
	b.capacity = max(capacity, burst)
	b.bufferSize.Store(int32(b.capacity))
	b.state.Store(int32(audiocore.StateOpen))
	b.log = GetLogger().With(
		logger.String("direction", cfg.Direction.String()),
		logger.String("api", cfg.API.String()))
}

func (b *base) Config() audiocore.StreamConfig { return b.config }
func (b *base) API() audiocore.API             { return b.config.API }
func (b *base) FramesPerBurst() int            { return b.burst }
func (b *base) BufferCapacityInFrames() int    { return b.capacity }
func (b *base) BufferSizeInFrames() int        { return int(b.bufferSize.Load()) }
func (b *base) FramesWritten() int64           { return b.framesWritten.Load() }
func (b *base) FramesRead() int64              { return b.framesRead.Load() }
func (b *base) CallbackCount() int64           { return b.callbackCount.Load() }
func (b *base) UsesCallback() bool             { return b.callback != nil }

// SetBufferSizeInFrames clamps n to [burst, capacity] and bounds how far
// blocking writes fill the buffer.
func (b *base) SetBufferSizeInFrames(n int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st := b.State(); st == audiocore.StateClosed || st == audiocore.StateClosing {
		return 0, invalidState("set_buffer_size", st)
	}
	n = min(max(n, b.burst), b.capacity)
	if b.resize != nil {
		applied, err := b.resize(n)
		if err != nil {
			return 0, err
		}
		n = applied
	}
	b.bufferSize.Store(int32(n))
	return n, nil
}

// State returns the stream state, following the backend until the stream is
// closed. Disconnected is sticky.
func (b *base) State() audiocore.State {
	st := audiocore.State(b.state.Load())
	switch st {
	case audiocore.StateClosing, audiocore.StateClosed, audiocore.StateDisconnected:
		return st
	}
	ns := b.backend.State()
	switch ns {
	case audiocore.StateUnknown, audiocore.StateUninitialized, audiocore.StateClosing, audiocore.StateClosed:
		return st
	}
	if ns != st && b.state.CompareAndSwap(int32(st), int32(ns)) {
		b.observer.StateChanged(ns)
	}
	return ns
}

func (b *base) setState(st audiocore.State) {
	if audiocore.State(b.state.Swap(int32(st))) != st {
		b.observer.StateChanged(st)
	}
}

func invalidState(op string, st audiocore.State) error {
	return errors.New(audiocore.ErrInvalidState).
		Component("stream").
		Context("operation", op).
		Context("state", st.String()).
		Build()
}

func disconnected(op string) error {
	return errors.New(audiocore.ErrDisconnected).
		Component("stream").
		Context("operation", op).
		Build()
}

// transition validates the current state against the allowed set, runs the
// backend request and records the transitional state. noop states succeed
// without touching the backend.
func (b *base) transition(op string, target audiocore.State, request func() error, allowed, noop []audiocore.State) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.State()
	if st == audiocore.StateDisconnected {
		return disconnected(op)
	}
	for _, s := range noop {
		if st == s {
			return nil
		}
	}
	ok := false
	for _, s := range allowed {
		if st == s {
			ok = true
			break
		}
	}
	if !ok {
		return invalidState(op, st)
	}

	if err := request(); err != nil {
		if b.backend.State() == audiocore.StateDisconnected {
			b.setState(audiocore.StateDisconnected)
		}
		b.log.Warn("backend rejected state request",
			logger.String("operation", op),
			logger.String("state", st.String()),
			logger.Error(err))
		return err
	}

	// The backend may already have completed the request
	if ns := b.backend.State(); ns == target || !ns.IsTransient() && ns != st {
		b.setState(ns)
	} else {
		b.setState(target)
	}
	b.log.Debug("state requested",
		logger.String("operation", op),
		logger.String("from", st.String()))
	return nil
}

func (b *base) RequestStart() error {
	return b.transition("start", audiocore.StateStarting, b.backend.RequestStart,
		[]audiocore.State{audiocore.StateOpen, audiocore.StatePaused, audiocore.StateStopped, audiocore.StateFlushed},
		[]audiocore.State{audiocore.StateStarting, audiocore.StateStarted})
}

func (b *base) RequestPause() error {
	return b.transition("pause", audiocore.StatePausing, b.backend.RequestPause,
		[]audiocore.State{audiocore.StateStarting, audiocore.StateStarted},
		[]audiocore.State{audiocore.StatePausing, audiocore.StatePaused})
}

func (b *base) RequestStop() error {
	return b.transition("stop", audiocore.StateStopping, b.backend.RequestStop,
		[]audiocore.State{audiocore.StateStarting, audiocore.StateStarted, audiocore.StatePausing, audiocore.StatePaused},
		[]audiocore.State{audiocore.StateStopping, audiocore.StateStopped, audiocore.StateOpen})
}

// settle issues a request and waits while the stream stays in transient.
func (b *base) settle(request func() error, transient audiocore.State, timeout time.Duration) error {
	if err := request(); err != nil {
		return err
	}
	st := b.State()
	for st == transient {
		next, err := b.WaitForStateChange(st, timeout)
		if err != nil {
			return err
		}
		st = next
	}
	if st == audiocore.StateDisconnected {
		return disconnected("wait")
	}
	return nil
}

func (b *base) Start(timeout time.Duration) error {
	return b.settle(b.RequestStart, audiocore.StateStarting, timeout)
}

func (b *base) Pause(timeout time.Duration) error {
	return b.settle(b.RequestPause, audiocore.StatePausing, timeout)
}

func (b *base) Stop(timeout time.Duration) error {
	return b.settle(b.RequestStop, audiocore.StateStopping, timeout)
}

// WaitForStateChange polls until the state differs from current.
func (b *base) WaitForStateChange(current audiocore.State, timeout time.Duration) (audiocore.State, error) {
	deadline := time.Now().Add(timeout)
	for {
		st := b.State()
		if st != current {
			return st, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return st, errors.New(audiocore.ErrTimeout).
				Component("stream").
				Context("state", st.String()).
				Context("timeout", timeout.String()).
				Build()
		}
		time.Sleep(min(StatePollInterval, remaining))
	}
}

// Close releases the backend from any state. It is idempotent.
func (b *base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := audiocore.State(b.state.Load())
	if st == audiocore.StateClosed || st == audiocore.StateClosing {
		return nil
	}
	b.setState(audiocore.StateClosing)
	if b.onClose != nil {
		b.onClose()
	}
	err := b.backend.Close()
	b.setState(audiocore.StateClosed)
	if err != nil {
		b.log.Warn("backend close failed", logger.Error(err))
		return errors.New(err).
			Component("stream").
			Category(errors.CategoryAudioBackend).
			Context("operation", "close").
			Build()
	}
	b.log.Debug("stream closed", logger.String("from", st.String()))
	return nil
}

// checkTransfer validates a blocking Read (read=true) or Write.
func (b *base) checkTransfer(read bool) error {
	op := "write"
	if read {
		op = "read"
	}
	st := b.State()
	switch st {
	case audiocore.StateDisconnected:
		return disconnected(op)
	case audiocore.StateClosing, audiocore.StateClosed, audiocore.StateUninitialized:
		return invalidState(op, st)
	}
	if read != b.config.IsInput() || b.callback != nil {
		return errors.New(audiocore.ErrInvalidState).
			Component("stream").
			Context("operation", op).
			Context("direction", b.config.Direction.String()).
			Context("callback", b.callback != nil).
			Build()
	}
	return nil
}

// countFrames adds numFrames to the counter matching the direction.
func (b *base) countFrames(numFrames int) {
	if b.config.IsInput() {
		b.framesRead.Add(int64(numFrames))
	} else {
		b.framesWritten.Add(int64(numFrames))
	}
}
