package processors

import (
	"github.com/tphakala/audiostream/internal/audiocore/flowgraph"
	"github.com/tphakala/audiostream/internal/audiocore/resampler"
)

// SampleRateConverter resamples its input to a different rate. It pulls its
// input on its own schedule, keeping unread input frames between blocks.
//
// Each refill pulls upstream with a fresh call count, not the one the
// converter was pulled with. The upstream chain must therefore feed only
// this converter: a node shared with another branch would run once for
// that branch and again for each refill.
type SampleRateConverter struct {
	flowgraph.Node
	Input  *flowgraph.InputPort
	Output *flowgraph.OutputPort

	resampler   *resampler.Linear
	inputCursor int
	inputValid  int
}

// NewSampleRateConverter wraps r, which fixes the channel count and rates.
func NewSampleRateConverter(r *resampler.Linear) *SampleRateConverter {
	c := &SampleRateConverter{
		Input:     flowgraph.NewInputPort(r.Channels()),
		resampler: r,
	}
	c.Output = flowgraph.NewOutputPort(c, r.Channels())
	c.Init(c)
	c.SetManualPull(true)
	return c
}

// Resampler returns the underlying resampler.
func (c *SampleRateConverter) Resampler() *resampler.Linear { return c.resampler }

func (c *SampleRateConverter) inputAvailable(framesWanted int) bool {
	if c.inputCursor >= c.inputValid {
		// Request roughly what the remaining output needs, plus one frame of slack
		want := framesWanted*c.resampler.InputRate()/c.resampler.OutputRate() + 1
		want = min(max(want, 1), flowgraph.MaxFrames)
		c.inputValid = c.Input.Pull(flowgraph.NextCallCount(), want)
		c.inputCursor = 0
	}
	return c.inputCursor < c.inputValid
}

// Process produces up to numFrames resampled frames. It returns fewer only
// when the input runs dry.
func (c *SampleRateConverter) Process(numFrames int) int {
	channels := c.Output.Channels()
	out := c.Output.Buffer()
	produced := 0
	for produced < numFrames {
		if c.resampler.IsWriteNeeded() {
			if !c.inputAvailable(numFrames - produced) {
				break
			}
			in := c.Input.Buffer()
			c.resampler.WriteFrame(in[c.inputCursor*channels : (c.inputCursor+1)*channels])
			c.inputCursor++
			continue
		}
		c.resampler.ReadFrame(out[produced*channels : (produced+1)*channels])
		produced++
	}
	return produced
}
