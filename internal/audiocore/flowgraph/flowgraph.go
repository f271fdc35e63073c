// Package flowgraph provides the primitives of a pull-scheduled audio graph:
// nodes that own typed ports, and connections between an output port and any
// number of input ports.
//
// A sink asks its input for a block; the request travels upstream and every
// node runs its Process at most once per call count, so a node feeding two
// sinks computes each block once. Buffers are allocated when a port is
// created and never on the audio thread.
//
// Connect and Disconnect may be called from the control goroutine while the
// audio thread pulls. The source of an input port and its constant value are
// atomics; everything else on a node belongs to the audio thread.
package flowgraph

import "sync/atomic"

// MaxFrames is the largest block a single pull may request. Sinks and
// sources split larger transfers.
const MaxFrames = 1024

var callCounter atomic.Int64

// NextCallCount returns a fresh call count. Every pull that starts a new block
// takes one, so nodes shared between sinks or rebuilt graphs never see a
// stale count.
func NextCallCount() int64 {
	return callCounter.Add(1)
}

// Processor is implemented by concrete nodes. Process produces up to
// numFrames frames into the node's output ports, reading the already pulled
// input port buffers, and returns how many frames it produced.
type Processor interface {
	Process(numFrames int) int
}

// Puller is anything an output port can pull from.
type Puller interface {
	Pull(callCount int64, numFrames int) int
}

// Node holds the scheduling state shared by every node. Concrete nodes embed
// it and call Init with themselves and their input ports.
type Node struct {
	self          Processor
	inputs        []*InputPort
	lastCallCount int64
	lastFrames    int
	manualPull    bool
}

// Init wires the embedding node. Inputs listed here are pulled before
// Process runs.
func (n *Node) Init(self Processor, inputs ...*InputPort) {
	n.self = self
	n.inputs = inputs
	n.lastCallCount = 0
}

// AddInput registers another auto-pulled input port.
func (n *Node) AddInput(in *InputPort) {
	n.inputs = append(n.inputs, in)
}

// SetManualPull stops Pull from pulling inputs. The node's Process pulls
// them itself, for example to read a different number of frames than it
// produces.
func (n *Node) SetManualPull(manual bool) {
	n.manualPull = manual
}

// Pull runs Process once for callCount. Repeated pulls with the same or an
// older callCount return the cached frame count. The number of frames
// processed is limited by the shortest input.
func (n *Node) Pull(callCount int64, numFrames int) int {
	if callCount <= n.lastCallCount {
		return n.lastFrames
	}
	n.lastCallCount = callCount

	if numFrames > MaxFrames {
		numFrames = MaxFrames
	}
	if !n.manualPull {
		for _, in := range n.inputs {
			if got := in.Pull(callCount, numFrames); got < numFrames {
				numFrames = got
			}
		}
	}

	n.lastFrames = n.self.Process(numFrames)
	return n.lastFrames
}

// LastCallCount returns the most recent call count processed.
func (n *Node) LastCallCount() int64 {
	return n.lastCallCount
}

// Reset forgets the cached call count so the next pull at any count runs.
// Only call while the node is not being pulled.
func (n *Node) Reset() {
	n.lastCallCount = 0
	n.lastFrames = 0
}
