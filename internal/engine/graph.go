package engine

import (
	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/flowgraph"
	"github.com/tphakala/audiostream/internal/audiocore/processors"
	"github.com/tphakala/audiostream/internal/audiocore/resampler"
)

// Tone generator constants.
const (
	// MaxOscillators bounds the per-channel oscillators of each tone type.
	MaxOscillators = 16

	DefaultFrequency = 440.0
	// FrequencyRatio spaces the per-channel sines a fourth apart.
	FrequencyRatio = 4.0 / 3.0
	DefaultAmplitude = 1.0

	SawPingFrequency = 800.0
	SawPingAmplitude = 1.0

	// RecordingSeconds is the capacity of the input recording.
	RecordingSeconds = 10
)

// toneGraph holds every generator of the output activities. Only the nodes
// of the selected tone type are connected to the sink.
type toneGraph struct {
	channels int

	sines   []*processors.Oscillator
	saws    []*processors.Oscillator
	impulse *processors.Oscillator
	sawPing *processors.SawPing

	manyToMulti *processors.ManyToMulti
	monoToMulti *processors.MonoToMulti
	sink        *processors.Sink

	toneType ToneType
	muted    [MaxOscillators]bool
}

func newToneGraph(cfg audiocore.StreamConfig, frequency float64, amplitude float32) *toneGraph {
	tones := min(cfg.ChannelCount, MaxOscillators)
	g := &toneGraph{
		channels:    cfg.ChannelCount,
		sines:       make([]*processors.Oscillator, tones),
		saws:        make([]*processors.Oscillator, tones),
		impulse:     processors.NewImpulseOscillator(cfg.SampleRate),
		sawPing:     processors.NewSawPing(cfg.SampleRate),
		manyToMulti: processors.NewManyToMulti(cfg.ChannelCount),
		monoToMulti: processors.NewMonoToMulti(cfg.ChannelCount),
		sink:        processors.NewSink(cfg.Format, cfg.ChannelCount),
	}
	for i := range tones {
		g.sines[i] = processors.NewSineOscillator(cfg.SampleRate)
		g.saws[i] = processors.NewSawtoothOscillator(cfg.SampleRate)
	}
	g.sawPing.Frequency.SetValue(SawPingFrequency)
	g.sawPing.Amplitude.SetValue(SawPingAmplitude)
	g.setFrequency(frequency)
	g.setAmplitude(amplitude)
	return g
}

func (g *toneGraph) setFrequency(frequency float64) {
	f := frequency
	for i := range g.sines {
		g.sines[i].Frequency.SetValue(float32(f))
		g.saws[i].Frequency.SetValue(float32(f))
		f *= FrequencyRatio
	}
	g.impulse.Frequency.SetValue(float32(frequency))
}

func (g *toneGraph) setAmplitude(amplitude float32) {
	for i := range g.sines {
		g.sines[i].Amplitude.SetValue(amplitude)
		g.saws[i].Amplitude.SetValue(amplitude)
	}
	g.impulse.Amplitude.SetValue(amplitude)
}

func (g *toneGraph) oscillators() []*processors.Oscillator {
	if g.toneType == ToneSawtooth {
		return g.saws
	}
	return g.sines
}

// connect routes the generators of toneType into the sink. Connections are
// atomic, so this may run while the audio thread pulls.
func (g *toneGraph) connect(toneType ToneType) {
	g.toneType = toneType
	switch toneType {
	case ToneSawPing:
		g.sawPing.Output.Connect(g.monoToMulti.Input)
		g.monoToMulti.Output.Connect(g.sink.Input)
	case ToneImpulse:
		g.impulse.Output.Connect(g.monoToMulti.Input)
		g.monoToMulti.Output.Connect(g.sink.Input)
	default:
		oscs := g.oscillators()
		for i, in := range g.manyToMulti.Inputs {
			if i < len(oscs) && !g.muted[i] {
				oscs[i].Output.Connect(in)
			} else {
				in.Disconnect()
			}
		}
		g.manyToMulti.Output.Connect(g.sink.Input)
	}
}

func (g *toneGraph) setChannelEnabled(channel int, enabled bool) {
	g.muted[channel] = !enabled
	if g.toneType != ToneSine && g.toneType != ToneSawtooth || channel >= len(g.manyToMulti.Inputs) {
		return
	}
	in := g.manyToMulti.Inputs[channel]
	if oscs := g.oscillators(); enabled && channel < len(oscs) {
		oscs[channel].Output.Connect(in)
		return
	}
	in.Disconnect()
}

// outputGateway renders a graph sink into an output stream's buffer.
type outputGateway struct {
	sink       *processors.Sink
	frameBytes int
}

func newOutputGateway(sink *processors.Sink, cfg audiocore.StreamConfig) *outputGateway {
	return &outputGateway{sink: sink, frameBytes: cfg.BytesPerFrame()}
}

func (g *outputGateway) OnAudioReady(_ audiocore.Stream, data []byte, numFrames int) audiocore.CallbackResult {
	n := g.sink.Read(data, numFrames)
	if n < numFrames {
		audiocore.Silence(data[n*g.frameBytes : numFrames*g.frameBytes])
	}
	return audiocore.CallbackContinue
}

// inputHandler decodes captured blocks and feeds the analyzer.
type inputHandler struct {
	analyzer *processors.InputAnalyzer
	format   audiocore.Format
	channels int
	scratch  []float32
}

func newInputHandler(analyzer *processors.InputAnalyzer, cfg audiocore.StreamConfig) *inputHandler {
	return &inputHandler{
		analyzer: analyzer,
		format:   cfg.Format,
		channels: cfg.ChannelCount,
		scratch:  make([]float32, flowgraph.MaxFrames*cfg.ChannelCount),
	}
}

func (h *inputHandler) OnAudioReady(_ audiocore.Stream, data []byte, numFrames int) audiocore.CallbackResult {
	frameBytes := h.channels * h.format.BytesPerSample()
	for done := 0; done < numFrames; {
		n := min(numFrames-done, flowgraph.MaxFrames)
		samples := h.scratch[:n*h.channels]
		audiocore.Decode(h.format, samples, data[done*frameBytes:(done+n)*frameBytes])
		h.analyzer.Analyze(samples, n)
		done += n
	}
	return audiocore.CallbackContinue
}

// adapt appends the channel count and rate conversions needed to carry a
// signal from one stream configuration to another.
func adapt(port *flowgraph.OutputPort, from, to audiocore.StreamConfig) (*flowgraph.OutputPort, error) {
	if from.ChannelCount != to.ChannelCount {
		c := processors.NewChannelCountConverter(from.ChannelCount, to.ChannelCount)
		port.Connect(c.Input)
		port = c.Output
	}
	if from.SampleRate != to.SampleRate {
		r, err := resampler.NewLinear(to.ChannelCount, from.SampleRate, to.SampleRate)
		if err != nil {
			return nil, err
		}
		c := processors.NewSampleRateConverter(r)
		port.Connect(c.Input)
		port = c.Output
	}
	return port, nil
}

// newPlayback builds a graph playing rec on a stream configured as out.
func newPlayback(rec *processors.Recording, out audiocore.StreamConfig) (*processors.RecordingSource, *outputGateway, error) {
	player := processors.NewRecordingSource(rec)
	recCfg := audiocore.StreamConfig{ChannelCount: rec.Channels(), SampleRate: rec.SampleRate()}
	port, err := adapt(player.Output, recCfg, out)
	if err != nil {
		return nil, nil, err
	}
	sink := processors.NewSink(out.Format, out.ChannelCount)
	port.Connect(sink.Input)
	return player, newOutputGateway(sink, out), nil
}
