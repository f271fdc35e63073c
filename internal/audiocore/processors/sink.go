package processors

import (
	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/flowgraph"
)

// Sink is the terminal node on a backend's write path. It pulls float
// blocks from its input and encodes them in the stream's sample format.
type Sink struct {
	Input  *flowgraph.InputPort
	format audiocore.Format
}

// NewSink creates a sink producing format with channels channels.
func NewSink(format audiocore.Format, channels int) *Sink {
	return &Sink{Input: flowgraph.NewInputPort(channels), format: format}
}

// NewSinkFloat creates a float32 sink.
func NewSinkFloat(channels int) *Sink { return NewSink(audiocore.FormatFloat, channels) }

// NewSinkI16 creates a 16-bit integer sink.
func NewSinkI16(channels int) *Sink { return NewSink(audiocore.FormatI16, channels) }

// Format returns the encoded sample format.
func (s *Sink) Format() audiocore.Format { return s.format }

// Read fills dst with up to numFrames encoded frames, pulling the graph in
// blocks of at most flowgraph.MaxFrames. It returns the frames produced,
// which is less than numFrames only when upstream ran dry.
func (s *Sink) Read(dst []byte, numFrames int) int {
	channels := s.Input.Channels()
	frameBytes := channels * s.format.BytesPerSample()

	done := 0
	for done < numFrames {
		want := min(numFrames-done, flowgraph.MaxFrames)
		got := s.Input.Pull(flowgraph.NextCallCount(), want)
		if got <= 0 {
			break
		}
		audiocore.Encode(s.format, dst[done*frameBytes:], s.Input.Buffer()[:got*channels])
		done += got
		if got < want {
			break
		}
	}
	return done
}
