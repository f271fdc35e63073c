package processors

import (
	"github.com/tphakala/audiostream/internal/audiocore/flowgraph"
)

// ManyToMulti interleaves N mono inputs into one N-channel output. Input i
// becomes channel i. An unconnected input contributes its constant value,
// zero by default.
type ManyToMulti struct {
	flowgraph.Node
	Inputs []*flowgraph.InputPort
	Output *flowgraph.OutputPort
}

// NewManyToMulti creates a converter with channels mono inputs.
func NewManyToMulti(channels int) *ManyToMulti {
	m := &ManyToMulti{Inputs: make([]*flowgraph.InputPort, channels)}
	for i := range m.Inputs {
		m.Inputs[i] = flowgraph.NewInputPort(1)
	}
	m.Output = flowgraph.NewOutputPort(m, channels)
	m.Init(m, m.Inputs...)
	return m
}

// Process interleaves the inputs.
func (m *ManyToMulti) Process(numFrames int) int {
	channels := len(m.Inputs)
	out := m.Output.Buffer()
	for ch, in := range m.Inputs {
		src := in.Buffer()
		for i := range numFrames {
			out[i*channels+ch] = src[i]
		}
	}
	return numFrames
}

// MonoToMulti copies one mono input onto every output channel.
type MonoToMulti struct {
	flowgraph.Node
	Input  *flowgraph.InputPort
	Output *flowgraph.OutputPort
}

// NewMonoToMulti creates a fan-out to channels output channels.
func NewMonoToMulti(channels int) *MonoToMulti {
	m := &MonoToMulti{Input: flowgraph.NewInputPort(1)}
	m.Output = flowgraph.NewOutputPort(m, channels)
	m.Init(m, m.Input)
	return m
}

// Process duplicates the input.
func (m *MonoToMulti) Process(numFrames int) int {
	channels := m.Output.Channels()
	in := m.Input.Buffer()
	out := m.Output.Buffer()
	for i := range numFrames {
		v := in[i]
		frame := out[i*channels : (i+1)*channels]
		for ch := range frame {
			frame[ch] = v
		}
	}
	return numFrames
}

// MultiToMono extracts the first channel of a multi-channel input.
type MultiToMono struct {
	flowgraph.Node
	Input  *flowgraph.InputPort
	Output *flowgraph.OutputPort
}

// NewMultiToMono creates a converter from channels input channels.
func NewMultiToMono(channels int) *MultiToMono {
	m := &MultiToMono{Input: flowgraph.NewInputPort(channels)}
	m.Output = flowgraph.NewOutputPort(m, 1)
	m.Init(m, m.Input)
	return m
}

// Process copies channel zero.
func (m *MultiToMono) Process(numFrames int) int {
	channels := m.Input.Channels()
	in := m.Input.Buffer()
	out := m.Output.Buffer()
	for i := range numFrames {
		out[i] = in[i*channels]
	}
	return numFrames
}

// ChannelCountConverter maps any channel count onto another. Output channel
// k reads input channel k modulo the input count, so mono is duplicated and
// extra input channels are dropped.
type ChannelCountConverter struct {
	flowgraph.Node
	Input  *flowgraph.InputPort
	Output *flowgraph.OutputPort
}

// NewChannelCountConverter creates a converter between the two counts.
func NewChannelCountConverter(inputChannels, outputChannels int) *ChannelCountConverter {
	c := &ChannelCountConverter{Input: flowgraph.NewInputPort(inputChannels)}
	c.Output = flowgraph.NewOutputPort(c, outputChannels)
	c.Init(c, c.Input)
	return c
}

// Process remaps channels frame by frame.
func (c *ChannelCountConverter) Process(numFrames int) int {
	inChannels := c.Input.Channels()
	outChannels := c.Output.Channels()
	in := c.Input.Buffer()
	out := c.Output.Buffer()
	for i := range numFrames {
		src := in[i*inChannels : (i+1)*inChannels]
		dst := out[i*outChannels : (i+1)*outChannels]
		inCh := 0
		for ch := range dst {
			dst[ch] = src[inCh]
			inCh++
			if inCh == inChannels {
				inCh = 0
			}
		}
	}
	return numFrames
}
