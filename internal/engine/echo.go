package engine

import (
	"time"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/processors"
)

// Echo delay limits.
const (
	DefaultEchoDelay = 500 * time.Millisecond
	MaxEchoDelay     = 2 * time.Second
)

// echoGraph plays captured input back on the output stream through a delay
// line. The output callback polls the input without blocking and pads any
// shortfall with silence, so the delay stays aligned with the output clock.
type echoGraph struct {
	input   audiocore.Stream
	delay   *processors.DelayLine
	gateway *outputGateway

	frameBytes int
}

func newEchoGraph(in, out audiocore.Stream, delay time.Duration) (*echoGraph, error) {
	inCfg, outCfg := in.Config(), out.Config()
	g := &echoGraph{input: in, frameBytes: inCfg.BytesPerFrame()}

	source := processors.NewFuncSource(inCfg.Format, inCfg.ChannelCount, g.poll)
	port, err := adapt(source.Output, inCfg, outCfg)
	if err != nil {
		return nil, err
	}
	g.delay = processors.NewDelayLine(outCfg.ChannelCount, framesFor(MaxEchoDelay, outCfg.SampleRate))
	g.delay.SetDelayFrames(framesFor(delay, outCfg.SampleRate))
	port.Connect(g.delay.Input)

	sink := processors.NewSink(outCfg.Format, outCfg.ChannelCount)
	g.delay.Output.Connect(sink.Input)
	g.gateway = newOutputGateway(sink, outCfg)
	return g, nil
}

// poll reads whatever input is ready and fills the rest of the block with
// silence.
func (g *echoGraph) poll(buf []byte, numFrames int) int {
	n, err := g.input.Read(buf, numFrames, 0)
	if err != nil || n < 0 {
		n = 0
	}
	audiocore.Silence(buf[n*g.frameBytes : numFrames*g.frameBytes])
	return numFrames
}

// setDelay changes the echo delay while running.
func (g *echoGraph) setDelay(delay time.Duration, sampleRate int) {
	g.delay.SetDelayFrames(framesFor(delay, sampleRate))
}

func framesFor(d time.Duration, sampleRate int) int {
	return int(d * time.Duration(sampleRate) / time.Second)
}
