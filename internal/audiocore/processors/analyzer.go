package processors

import (
	"math"
	"sync/atomic"
)

// PeakDecay is applied to each channel's peak level once per analyzed block.
const PeakDecay = 0.95

// InputAnalyzer tracks per-channel peak levels of captured audio and
// optionally appends it to a Recording. Analyze runs on the audio thread;
// Peak may be read from any goroutine.
type InputAnalyzer struct {
	channels  int
	peaks     []atomic.Uint32
	recording atomic.Pointer[Recording]
}

// NewInputAnalyzer creates an analyzer for channels channels.
func NewInputAnalyzer(channels int) *InputAnalyzer {
	return &InputAnalyzer{
		channels: channels,
		peaks:    make([]atomic.Uint32, channels),
	}
}

// Channels returns samples per frame.
func (a *InputAnalyzer) Channels() int { return a.channels }

// SetRecording attaches rec, or detaches with nil.
func (a *InputAnalyzer) SetRecording(rec *Recording) { a.recording.Store(rec) }

// Recording returns the attached recording, if any.
func (a *InputAnalyzer) Recording() *Recording { return a.recording.Load() }

// Analyze processes numFrames interleaved frames.
func (a *InputAnalyzer) Analyze(samples []float32, numFrames int) {
	for ch := range a.channels {
		level := math.Float32frombits(a.peaks[ch].Load()) * PeakDecay
		for i := range numFrames {
			v := samples[i*a.channels+ch]
			if v < 0 {
				v = -v
			}
			if v > level {
				level = v
			}
		}
		a.peaks[ch].Store(math.Float32bits(level))
	}
	if rec := a.recording.Load(); rec != nil {
		rec.Write(samples, numFrames)
	}
}

// Peak returns the decaying peak level of channel ch.
func (a *InputAnalyzer) Peak(ch int) float32 {
	if ch < 0 || ch >= a.channels {
		return 0
	}
	return math.Float32frombits(a.peaks[ch].Load())
}

// Peaks returns every channel's peak level.
func (a *InputAnalyzer) Peaks() []float32 {
	out := make([]float32, a.channels)
	for ch := range out {
		out[ch] = a.Peak(ch)
	}
	return out
}

// Reset zeroes the peak levels.
func (a *InputAnalyzer) Reset() {
	for ch := range a.peaks {
		a.peaks[ch].Store(0)
	}
}
