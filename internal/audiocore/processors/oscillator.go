// Package processors provides the flow graph node library: oscillators,
// channel converters, format sinks and sources, a sample rate converter, a
// delay line and the input analyzer with its recording buffer.
//
// Process methods run on the audio thread. They never allocate, block or log.
package processors

import (
	"math"

	"github.com/tphakala/audiostream/internal/audiocore/flowgraph"
)

// Waveform selects the function an Oscillator applies to its phase.
type Waveform int

const (
	WaveformSine Waveform = iota
	WaveformSawtooth
	WaveformImpulse
)

// String returns the waveform name
func (w Waveform) String() string {
	switch w {
	case WaveformSine:
		return "sine"
	case WaveformSawtooth:
		return "sawtooth"
	case WaveformImpulse:
		return "impulse"
	default:
		return "unknown"
	}
}

// phaseAccumulator holds a phase in [-1, 1) that advances by
// frequency/sampleRate per sample.
type phaseAccumulator struct {
	phase      float64
	phaseScale float64
	sampleRate int
}

func (p *phaseAccumulator) setSampleRate(sampleRate int) {
	p.sampleRate = sampleRate
	if sampleRate > 0 {
		p.phaseScale = 1.0 / float64(sampleRate)
	} else {
		p.phaseScale = 0
	}
}

// increment advances the phase and reports whether it wrapped.
func (p *phaseAccumulator) increment(frequency float32) bool {
	p.phase += float64(frequency) * p.phaseScale
	switch {
	case p.phase >= 1.0:
		p.phase -= 2.0
	case p.phase < -1.0:
		p.phase += 2.0
	default:
		return false
	}
	// Frequencies beyond the sample rate can overshoot a single wrap
	if p.phase >= 1.0 || p.phase < -1.0 {
		p.phase = WrapPhase(p.phase)
	}
	return true
}

// WrapPhase maps any phase into [-1, 1).
func WrapPhase(phase float64) float64 {
	p := math.Mod(phase+1.0, 2.0)
	if p < 0 {
		p += 2.0
	}
	p -= 1.0
	if p >= 1.0 {
		p = -1.0
	}
	return p
}

// Oscillator is a mono signal generator. Frequency and Amplitude are
// audio-rate inputs; leave them unconnected and call SetValue for a constant.
type Oscillator struct {
	flowgraph.Node
	phaseAccumulator

	Frequency *flowgraph.InputPort
	Amplitude *flowgraph.InputPort
	Output    *flowgraph.OutputPort

	waveform Waveform
}

// NewOscillator creates an oscillator at sampleRate.
func NewOscillator(waveform Waveform, sampleRate int) *Oscillator {
	o := &Oscillator{
		Frequency: flowgraph.NewInputPort(1),
		Amplitude: flowgraph.NewInputPort(1),
		waveform:  waveform,
	}
	o.Output = flowgraph.NewOutputPort(o, 1)
	o.setSampleRate(sampleRate)
	o.Init(o, o.Frequency, o.Amplitude)
	return o
}

// NewSineOscillator creates a sine oscillator.
func NewSineOscillator(sampleRate int) *Oscillator {
	return NewOscillator(WaveformSine, sampleRate)
}

// NewSawtoothOscillator creates a sawtooth oscillator.
func NewSawtoothOscillator(sampleRate int) *Oscillator {
	return NewOscillator(WaveformSawtooth, sampleRate)
}

// NewImpulseOscillator creates an impulse train oscillator.
func NewImpulseOscillator(sampleRate int) *Oscillator {
	return NewOscillator(WaveformImpulse, sampleRate)
}

// Waveform returns the oscillator's waveform.
func (o *Oscillator) Waveform() Waveform { return o.waveform }

// SampleRate returns the rate the phase increment is scaled to.
func (o *Oscillator) SampleRate() int { return o.sampleRate }

// SetSampleRate rescales the phase increment. Call before the oscillator is
// pulled.
func (o *Oscillator) SetSampleRate(sampleRate int) { o.setSampleRate(sampleRate) }

// Phase returns the current phase.
func (o *Oscillator) Phase() float64 { return o.phase }

// SetPhase sets the phase, wrapping it into [-1, 1).
func (o *Oscillator) SetPhase(phase float64) { o.phase = WrapPhase(phase) }

// Process advances the phase once per frame, then evaluates the waveform.
func (o *Oscillator) Process(numFrames int) int {
	freq := o.Frequency.Buffer()
	amp := o.Amplitude.Buffer()
	out := o.Output.Buffer()

	switch o.waveform {
	case WaveformSine:
		for i := range numFrames {
			o.increment(freq[i])
			out[i] = float32(math.Sin(o.phase*math.Pi)) * amp[i]
		}
	case WaveformSawtooth:
		for i := range numFrames {
			o.increment(freq[i])
			out[i] = float32(o.phase) * amp[i]
		}
	case WaveformImpulse:
		for i := range numFrames {
			if o.increment(freq[i]) {
				out[i] = amp[i]
			} else {
				out[i] = 0
			}
		}
	}
	return numFrames
}
