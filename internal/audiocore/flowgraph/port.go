package flowgraph

import (
	"math"
	"sync/atomic"
)

// OutputPort is a node's output. It may feed many input ports.
type OutputPort struct {
	owner    Puller
	channels int
	buffer   []float32
}

// NewOutputPort allocates an output buffer of MaxFrames frames.
func NewOutputPort(owner Puller, channels int) *OutputPort {
	return &OutputPort{
		owner:    owner,
		channels: channels,
		buffer:   make([]float32, MaxFrames*channels),
	}
}

// Channels returns the samples per frame.
func (o *OutputPort) Channels() int {
	return o.channels
}

// Buffer returns the interleaved output buffer.
func (o *OutputPort) Buffer() []float32 {
	return o.buffer
}

// Connect makes in read from o, replacing any previous source of in.
func (o *OutputPort) Connect(in *InputPort) {
	in.Connect(o)
}

// Disconnect detaches in if it is currently fed by o.
func (o *OutputPort) Disconnect(in *InputPort) {
	in.source.CompareAndSwap(o, nil)
}

func (o *OutputPort) pull(callCount int64, numFrames int) int {
	return o.owner.Pull(callCount, numFrames)
}

// InputPort is a node's input. It has at most one source. When unconnected
// it yields its constant value on every channel.
type InputPort struct {
	channels int
	buffer   []float32
	value    atomic.Uint32
	source   atomic.Pointer[OutputPort]

	// active is the source observed by the last Pull; audio thread only.
	active *OutputPort
}

// NewInputPort allocates the constant-value buffer.
func NewInputPort(channels int) *InputPort {
	return &InputPort{
		channels: channels,
		buffer:   make([]float32, MaxFrames*channels),
	}
}

// Channels returns the samples per frame.
func (i *InputPort) Channels() int {
	return i.channels
}

// Connect sets the source, replacing any previous connection.
func (i *InputPort) Connect(o *OutputPort) {
	i.source.Store(o)
}

// Disconnect removes the source. Disconnecting an unconnected port does nothing.
func (i *InputPort) Disconnect() {
	i.source.Store(nil)
}

// IsConnected reports whether a source is attached.
func (i *InputPort) IsConnected() bool {
	return i.source.Load() != nil
}

// Source returns the connected output port or nil.
func (i *InputPort) Source() *OutputPort {
	return i.source.Load()
}

// SetValue sets the constant produced while unconnected. Safe to call from
// any goroutine.
func (i *InputPort) SetValue(v float32) {
	i.value.Store(math.Float32bits(v))
}

// Value returns the constant produced while unconnected.
func (i *InputPort) Value() float32 {
	return math.Float32frombits(i.value.Load())
}

// Pull fetches numFrames frames for callCount and returns how many are valid.
func (i *InputPort) Pull(callCount int64, numFrames int) int {
	src := i.source.Load()
	i.active = src
	if src != nil {
		return src.pull(callCount, numFrames)
	}

	v := i.Value()
	n := numFrames * i.channels
	for k := range n {
		i.buffer[k] = v
	}
	return numFrames
}

// Buffer returns the samples made valid by the last Pull.
func (i *InputPort) Buffer() []float32 {
	if i.active != nil {
		return i.active.buffer
	}
	return i.buffer
}
