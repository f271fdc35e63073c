package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/errors"
)

// BlockingTimeout bounds each read or write of the blocking I/O loop.
const BlockingTimeout = time.Second

// Reasons the blocking I/O loop exits.
const (
	ExitStopped       = "stopped"
	ExitCallbackStop  = "callback_stop"
	ExitShortTransfer = "short_transfer"
	ExitTimeout       = "timeout"
	ExitDisconnected  = "disconnected"
	ExitError         = "error"
)

// blockingLoop services a stream opened without a callback. Each iteration
// moves one block: output blocks are rendered by the callback and written,
// input blocks are read and handed to the callback. The loop ends when it is
// disabled, when the callback returns Stop, or when a transfer fails or
// comes up short.
type blockingLoop struct {
	stream         audiocore.Stream
	callback       audiocore.DataCallback
	framesPerBlock int
	buf            []byte
	onExit         func(reason string, err error)

	enabled atomic.Bool
	exited  atomic.Bool
	wg      sync.WaitGroup

	reason string
	err    error
}

func startBlockingLoop(s audiocore.Stream, cb audiocore.DataCallback, framesPerBlock int, onExit func(string, error)) *blockingLoop {
	l := &blockingLoop{
		stream:         s,
		callback:       cb,
		framesPerBlock: framesPerBlock,
		buf:            make([]byte, framesPerBlock*s.Config().BytesPerFrame()),
		onExit:         onExit,
	}
	l.enabled.Store(true)
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *blockingLoop) run() {
	defer l.wg.Done()
	l.reason, l.err = l.serve()
	l.exited.Store(true)
	if l.onExit != nil {
		l.onExit(l.reason, l.err)
	}
}

func (l *blockingLoop) serve() (string, error) {
	input := l.stream.Config().IsInput()
	for l.enabled.Load() {
		if input {
			n, err := l.stream.Read(l.buf, l.framesPerBlock, BlockingTimeout)
			if err != nil {
				return exitReason(err), err
			}
			if n < l.framesPerBlock {
				return ExitShortTransfer, nil
			}
			if l.callback.OnAudioReady(l.stream, l.buf, n) == audiocore.CallbackStop {
				return ExitCallbackStop, nil
			}
			continue
		}

		result := l.callback.OnAudioReady(l.stream, l.buf, l.framesPerBlock)
		n, err := l.stream.Write(l.buf, l.framesPerBlock, BlockingTimeout)
		if err != nil {
			return exitReason(err), err
		}
		if n < l.framesPerBlock {
			return ExitShortTransfer, nil
		}
		if result == audiocore.CallbackStop {
			return ExitCallbackStop, nil
		}
	}
	return ExitStopped, nil
}

// running reports whether the loop goroutine is still serving.
func (l *blockingLoop) running() bool { return !l.exited.Load() }

// stop disables the loop and waits for it to exit. The loop notices within
// one block while the stream is running, or when its transfer times out.
func (l *blockingLoop) stop() {
	l.enabled.Store(false)
	l.wg.Wait()
}

func exitReason(err error) string {
	switch {
	case errors.Is(err, audiocore.ErrDisconnected):
		return ExitDisconnected
	case errors.Is(err, audiocore.ErrTimeout):
		return ExitTimeout
	default:
		return ExitError
	}
}
