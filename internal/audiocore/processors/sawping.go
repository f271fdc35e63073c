package processors

import (
	"sync/atomic"

	"github.com/tphakala/audiostream/internal/audiocore/flowgraph"
)

// SawPingDecay is the per-sample envelope decay of the saw ping.
const SawPingDecay = 0.999

// SawPing is a sawtooth with an exponentially decaying envelope. Each
// trigger restarts the envelope at full level. It is silent until the first
// trigger.
type SawPing struct {
	flowgraph.Node
	phaseAccumulator

	Frequency *flowgraph.InputPort
	Amplitude *flowgraph.InputPort
	Output    *flowgraph.OutputPort

	requests     atomic.Int64
	acknowledged int64
	enabled      atomic.Bool
	level        float32
}

// NewSawPing creates a disabled saw ping generator.
func NewSawPing(sampleRate int) *SawPing {
	s := &SawPing{
		Frequency: flowgraph.NewInputPort(1),
		Amplitude: flowgraph.NewInputPort(1),
	}
	s.Output = flowgraph.NewOutputPort(s, 1)
	s.setSampleRate(sampleRate)
	s.Init(s, s.Frequency, s.Amplitude)
	return s
}

// SetEnabled arms the generator. A transition to enabled triggers a ping.
// Safe to call from any goroutine.
func (s *SawPing) SetEnabled(enabled bool) {
	if s.enabled.Swap(enabled) != enabled && enabled {
		s.Trigger()
	}
}

// Enabled reports whether the generator is armed.
func (s *SawPing) Enabled() bool { return s.enabled.Load() }

// Trigger requests a new ping. Safe to call from any goroutine.
func (s *SawPing) Trigger() {
	s.requests.Add(1)
}

// Level returns the current envelope level. Audio thread only.
func (s *SawPing) Level() float32 { return s.level }

// Process renders the decaying sawtooth.
func (s *SawPing) Process(numFrames int) int {
	if req := s.requests.Load(); req > s.acknowledged {
		s.acknowledged = req
		s.phase = -1.0
		s.level = 1.0
	}

	freq := s.Frequency.Buffer()
	amp := s.Amplitude.Buffer()
	out := s.Output.Buffer()
	for i := range numFrames {
		out[i] = float32(s.phase) * s.level * amp[i]
		s.increment(freq[i])
		s.level *= SawPingDecay
	}
	return numFrames
}
