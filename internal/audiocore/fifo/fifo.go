// Package fifo is the frame-granular ring buffer between a backend's
// callback and a blocking reader or writer.
//
// One side is the real-time callback (FillOutput or StoreInput), the other
// a blocking-I/O goroutine (ReadWait or WriteWait). Transfers always move
// whole frames. A callback that cannot be fully served counts one xrun.
package fifo

import (
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/errors"
)

// DefaultBurstMultiple is the number of bursts buffered when the block size
// fits in one burst.
const DefaultBurstMultiple = 2

// CapacityForBlock returns the buffer capacity in frames for a backend burst
// and an application block size: two bursts, or enough whole bursts to hold
// two blocks when the block is larger than a burst.
func CapacityForBlock(burst, blockSize int) int {
	if burst <= 0 {
		return max(blockSize, 1) * DefaultBurstMultiple
	}
	numBursts := DefaultBurstMultiple
	if blockSize > burst {
		numBursts = (DefaultBurstMultiple*blockSize + burst - 1) / burst
	}
	return numBursts * burst
}

// FIFO is a single-producer single-consumer ring of whole frames.
type FIFO struct {
	rb             *ringbuffer.RingBuffer
	frameBytes     int
	capacityFrames int

	// limitFrames caps the frames held, at most capacityFrames.
	limitFrames atomic.Int32

	xruns         atomic.Int64
	framesWritten atomic.Int64
	framesRead    atomic.Int64

	readable  chan struct{}
	writable  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New allocates a FIFO holding capacityFrames frames of frameBytes bytes.
func New(capacityFrames, frameBytes int) (*FIFO, error) {
	if capacityFrames <= 0 || frameBytes <= 0 {
		return nil, errors.New(audiocore.ErrOutOfRange).
			Component("fifo").
			Context("capacity_frames", capacityFrames).
			Context("frame_bytes", frameBytes).
			Build()
	}
	f := &FIFO{
		rb:             ringbuffer.New(capacityFrames * frameBytes),
		frameBytes:     frameBytes,
		capacityFrames: capacityFrames,
		readable:       make(chan struct{}, 1),
		writable:       make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	f.limitFrames.Store(int32(capacityFrames))
	return f, nil
}

// CapacityFrames returns the capacity in frames.
func (f *FIFO) CapacityFrames() int { return f.capacityFrames }

// FrameBytes returns the size of one frame.
func (f *FIFO) FrameBytes() int { return f.frameBytes }

// AvailableFrames returns the frames ready to be read.
func (f *FIFO) AvailableFrames() int { return f.rb.Length() / f.frameBytes }

// LimitFrames returns the number of frames the FIFO fills up to.
func (f *FIFO) LimitFrames() int { return int(f.limitFrames.Load()) }

// SetLimit caps the frames the FIFO holds, clamped to [1, capacity], and
// returns the applied limit. Frames already queued above the new limit are
// kept and drain normally.
func (f *FIFO) SetLimit(frames int) int {
	frames = min(max(frames, 1), f.capacityFrames)
	f.limitFrames.Store(int32(frames))
	signal(f.writable)
	return frames
}

// FreeFrames returns the frames that can be written without passing the
// limit.
func (f *FIFO) FreeFrames() int {
	free := min(f.rb.Free()/f.frameBytes, f.LimitFrames()-f.AvailableFrames())
	return max(free, 0)
}

// XRunCount returns the number of callbacks that found the FIFO short.
func (f *FIFO) XRunCount() int64 { return f.xruns.Load() }

// FramesWritten returns the total frames accepted.
func (f *FIFO) FramesWritten() int64 { return f.framesWritten.Load() }

// FramesRead returns the total frames delivered.
func (f *FIFO) FramesRead() int64 { return f.framesRead.Load() }

// WriteFrames stores as many whole frames of src as fit, up to numFrames,
// and returns how many were stored. It never blocks.
func (f *FIFO) WriteFrames(src []byte, numFrames int) int {
	n := min(numFrames, f.FreeFrames())
	if n <= 0 {
		return 0
	}
	written, err := f.rb.Write(src[:n*f.frameBytes])
	if err != nil && !stderrors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
		return 0
	}
	n = written / f.frameBytes
	f.framesWritten.Add(int64(n))
	signal(f.readable)
	return n
}

// ReadFrames copies up to numFrames whole frames into dst and returns how
// many were copied. It never blocks.
func (f *FIFO) ReadFrames(dst []byte, numFrames int) int {
	n := min(numFrames, f.AvailableFrames())
	if n <= 0 {
		return 0
	}
	read, err := f.rb.Read(dst[:n*f.frameBytes])
	if err != nil {
		return 0
	}
	n = read / f.frameBytes
	f.framesRead.Add(int64(n))
	signal(f.writable)
	return n
}

// FillOutput serves an output callback: it reads numFrames frames into dst,
// fills any shortfall with silence and counts one xrun if there was one.
func (f *FIFO) FillOutput(dst []byte, numFrames int) int {
	n := f.ReadFrames(dst, numFrames)
	if n < numFrames {
		audiocore.Silence(dst[n*f.frameBytes : numFrames*f.frameBytes])
		f.xruns.Add(1)
	}
	return n
}

// StoreInput serves an input callback: it stores the whole frames that fit,
// drops the rest and counts one xrun if anything was dropped.
func (f *FIFO) StoreInput(src []byte, numFrames int) int {
	n := f.WriteFrames(src, numFrames)
	if n < numFrames {
		f.xruns.Add(1)
	}
	return n
}

// ReadWait reads numFrames frames, waiting up to timeout for them. A zero
// timeout never waits. It returns the frames read, with audiocore.ErrTimeout
// if the timeout elapsed before any frame arrived.
func (f *FIFO) ReadWait(dst []byte, numFrames int, timeout time.Duration) (int, error) {
	return f.transfer(numFrames, timeout, f.readable, func(done int) int {
		return f.ReadFrames(dst[done*f.frameBytes:], numFrames-done)
	})
}

// WriteWait writes numFrames frames, waiting up to timeout for room.
func (f *FIFO) WriteWait(src []byte, numFrames int, timeout time.Duration) (int, error) {
	return f.transfer(numFrames, timeout, f.writable, func(done int) int {
		return f.WriteFrames(src[done*f.frameBytes:], numFrames-done)
	})
}

func (f *FIFO) transfer(numFrames int, timeout time.Duration, wake <-chan struct{}, step func(done int) int) (int, error) {
	done := step(0)
	if done >= numFrames || timeout <= 0 {
		return done, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for done < numFrames {
		select {
		case <-wake:
			done += step(done)
		case <-f.done:
			if done == 0 {
				return 0, ErrClosed
			}
			return done, nil
		case <-timer.C:
			// Pick up anything that arrived with the deadline
			done += step(done)
			if done == 0 {
				return 0, errors.New(audiocore.ErrTimeout).
					Component("fifo").
					Context("timeout", timeout.String()).
					Context("frames_requested", numFrames).
					Build()
			}
			return done, nil
		}
	}
	return done, nil
}

// Reset discards buffered frames. Only call while neither side is active.
func (f *FIFO) Reset() {
	f.rb.Reset()
}

// Close wakes and fails any blocked transfer. It is idempotent.
func (f *FIFO) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
