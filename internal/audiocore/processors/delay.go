package processors

import (
	"math"
	"sync/atomic"

	"github.com/tphakala/audiostream/internal/audiocore/flowgraph"
)

// DelayLine delays a multi-channel signal by a settable number of frames up
// to a fixed maximum. Feedback mixes the delayed signal back into the line.
type DelayLine struct {
	flowgraph.Node
	Input  *flowgraph.InputPort
	Output *flowgraph.OutputPort

	line      []float32
	maxFrames int
	cursor    int

	delayFrames atomic.Int32
	feedback    atomic.Uint32
}

// NewDelayLine allocates room for maxFrames frames of delay.
func NewDelayLine(channels, maxFrames int) *DelayLine {
	maxFrames = max(maxFrames, 1)
	d := &DelayLine{
		Input:     flowgraph.NewInputPort(channels),
		line:      make([]float32, maxFrames*channels),
		maxFrames: maxFrames,
	}
	d.Output = flowgraph.NewOutputPort(d, channels)
	d.Init(d, d.Input)
	return d
}

// MaxDelayFrames returns the capacity of the line.
func (d *DelayLine) MaxDelayFrames() int { return d.maxFrames }

// SetDelayFrames sets the delay, clamped to [0, MaxDelayFrames]. Safe to
// call from any goroutine.
func (d *DelayLine) SetDelayFrames(frames int) int {
	frames = min(max(frames, 0), d.maxFrames)
	d.delayFrames.Store(int32(frames))
	return frames
}

// DelayFrames returns the current delay.
func (d *DelayLine) DelayFrames() int { return int(d.delayFrames.Load()) }

// SetFeedback sets the gain of the delayed signal fed back into the line.
func (d *DelayLine) SetFeedback(gain float32) {
	d.feedback.Store(math.Float32bits(gain))
}

// Feedback returns the feedback gain.
func (d *DelayLine) Feedback() float32 { return math.Float32frombits(d.feedback.Load()) }

// Process writes each input frame into the line and emits the frame written
// DelayFrames earlier.
func (d *DelayLine) Process(numFrames int) int {
	channels := d.Output.Channels()
	delay := d.DelayFrames()
	feedback := d.Feedback()
	in := d.Input.Buffer()
	out := d.Output.Buffer()

	for i := range numFrames {
		src := in[i*channels : (i+1)*channels]
		dst := out[i*channels : (i+1)*channels]
		if delay == 0 {
			copy(dst, src)
			continue
		}
		read := d.cursor - delay
		if read < 0 {
			read += d.maxFrames
		}
		delayed := d.line[read*channels : (read+1)*channels]
		write := d.line[d.cursor*channels : (d.cursor+1)*channels]
		for ch := range channels {
			dst[ch] = delayed[ch]
		}
		for ch := range channels {
			write[ch] = src[ch] + feedback*dst[ch]
		}
		d.cursor++
		if d.cursor == d.maxFrames {
			d.cursor = 0
		}
	}
	return numFrames
}
