package processors

import (
	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/flowgraph"
)

// Source decodes caller-provided PCM into the graph. Call SetData before
// each block; Process consumes it until exhausted.
type Source struct {
	flowgraph.Node
	Output *flowgraph.OutputPort

	format   audiocore.Format
	data     []byte
	frames   int
	position int
}

// NewSource creates a source decoding format with channels channels.
func NewSource(format audiocore.Format, channels int) *Source {
	s := &Source{format: format}
	s.Output = flowgraph.NewOutputPort(s, channels)
	s.Init(s)
	return s
}

// NewSourceFloat creates a float32 source.
func NewSourceFloat(channels int) *Source { return NewSource(audiocore.FormatFloat, channels) }

// NewSourceI16 creates a 16-bit integer source.
func NewSourceI16(channels int) *Source { return NewSource(audiocore.FormatI16, channels) }

// SetData points the source at numFrames encoded frames. The slice is
// borrowed until the frames are consumed.
func (s *Source) SetData(data []byte, numFrames int) {
	s.data = data
	s.frames = numFrames
	s.position = 0
}

// FramesRemaining returns the frames not yet consumed.
func (s *Source) FramesRemaining() int { return s.frames - s.position }

// Process decodes the next frames.
func (s *Source) Process(numFrames int) int {
	n := min(numFrames, s.frames-s.position)
	if n <= 0 {
		return 0
	}
	channels := s.Output.Channels()
	frameBytes := channels * s.format.BytesPerSample()
	start := s.position * frameBytes
	audiocore.Decode(s.format, s.Output.Buffer()[:n*channels], s.data[start:start+n*frameBytes])
	s.position += n
	return n
}

// FillFunc produces up to numFrames encoded frames into buf and returns how
// many it produced.
type FillFunc func(buf []byte, numFrames int) int

// FuncSource pulls encoded frames from a function on every block. It bridges
// an application callback or a blocking read into the graph.
type FuncSource struct {
	flowgraph.Node
	Output *flowgraph.OutputPort

	format  audiocore.Format
	fill    FillFunc
	scratch []byte
}

// NewFuncSource creates a source calling fill for each block.
func NewFuncSource(format audiocore.Format, channels int, fill FillFunc) *FuncSource {
	s := &FuncSource{
		format:  format,
		fill:    fill,
		scratch: make([]byte, flowgraph.MaxFrames*channels*format.BytesPerSample()),
	}
	s.Output = flowgraph.NewOutputPort(s, channels)
	s.Init(s)
	return s
}

// Process calls the fill function and decodes what it produced.
func (s *FuncSource) Process(numFrames int) int {
	n := s.fill(s.scratch, numFrames)
	if n <= 0 {
		return 0
	}
	n = min(n, numFrames)
	channels := s.Output.Channels()
	audiocore.Decode(s.format, s.Output.Buffer()[:n*channels], s.scratch[:n*channels*s.format.BytesPerSample()])
	return n
}
