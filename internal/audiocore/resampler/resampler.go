// Package resampler converts interleaved float frames between sample rates
// with linear interpolation.
//
// The read position is tracked as an exact rational: with g = gcd(in, out)
// the integer phase grows by in/g per output frame and shrinks by out/g per
// input frame. The interpolation fraction is recomputed from integers on each
// read, so long sessions accumulate no drift.
package resampler

import (
	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/errors"
)

// Linear is a multi-channel linear resampler. It is not safe for concurrent
// use; it belongs to whichever goroutine drives the audio.
type Linear struct {
	channels    int
	inputRate   int
	outputRate  int
	numerator   int64
	denominator int64
	phase       int64
	primed      bool

	previous []float32
	current  []float32
}

// NewLinear creates a resampler for channels interleaved channels.
func NewLinear(channels, inputRate, outputRate int) (*Linear, error) {
	if channels < audiocore.MinChannelCount || channels > audiocore.MaxChannelCount {
		return nil, errors.New(audiocore.ErrOutOfRange).
			Component("resampler").
			Context("channel_count", channels).
			Build()
	}
	if inputRate <= 0 || outputRate <= 0 {
		return nil, errors.New(audiocore.ErrOutOfRange).
			Component("resampler").
			Context("input_rate", inputRate).
			Context("output_rate", outputRate).
			Build()
	}

	g := gcd(inputRate, outputRate)
	r := &Linear{
		channels:    channels,
		inputRate:   inputRate,
		outputRate:  outputRate,
		numerator:   int64(inputRate / g),
		denominator: int64(outputRate / g),
		previous:    make([]float32, channels),
		current:     make([]float32, channels),
	}
	r.Reset()
	return r, nil
}

// Channels returns the number of interleaved channels per frame.
func (r *Linear) Channels() int { return r.channels }

// InputRate returns the rate of frames passed to WriteFrame.
func (r *Linear) InputRate() int { return r.inputRate }

// OutputRate returns the rate of frames produced by ReadFrame.
func (r *Linear) OutputRate() int { return r.outputRate }

// IsWriteNeeded reports whether another input frame must be written before
// the next ReadFrame.
func (r *Linear) IsWriteNeeded() bool {
	return r.phase >= r.denominator
}

// WriteFrame admits one input frame of Channels samples.
func (r *Linear) WriteFrame(frame []float32) {
	if !r.primed {
		copy(r.previous, frame[:r.channels])
		r.primed = true
	} else {
		copy(r.previous, r.current)
	}
	copy(r.current, frame[:r.channels])
	r.phase -= r.denominator
}

// ReadFrame produces one output frame into frame, interpolating between the
// two most recently written input frames.
func (r *Linear) ReadFrame(frame []float32) {
	fraction := float32(float64(r.phase) / float64(r.denominator))
	for ch := range r.channels {
		prev := r.previous[ch]
		frame[ch] = prev + fraction*(r.current[ch]-prev)
	}
	r.phase += r.numerator
}

// Reset discards history so the next operation must be a write.
func (r *Linear) Reset() {
	r.phase = r.denominator
	r.primed = false
	clear(r.previous)
	clear(r.current)
}

// OutputFramesFor returns how many frames are produced after n input frames
// from a freshly reset resampler: ceil(n * out / in).
func (r *Linear) OutputFramesFor(n int64) int64 {
	return (n*r.denominator + r.numerator - 1) / r.numerator
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
