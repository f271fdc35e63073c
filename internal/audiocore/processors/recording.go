package processors

import (
	"sync/atomic"

	"github.com/go-audio/audio"

	"github.com/tphakala/audiostream/internal/audiocore/flowgraph"
)

// Recording is a fixed-capacity in-memory multi-channel sample store. One
// goroutine writes while others may read the frames already committed.
type Recording struct {
	channels   int
	sampleRate int
	maxFrames  int
	data       []float32
	frames     atomic.Int64
}

// NewRecording allocates room for maxFrames frames.
func NewRecording(channels, sampleRate, maxFrames int) *Recording {
	return &Recording{
		channels:   channels,
		sampleRate: sampleRate,
		maxFrames:  maxFrames,
		data:       make([]float32, channels*maxFrames),
	}
}

// Channels returns samples per frame.
func (r *Recording) Channels() int { return r.channels }

// SampleRate returns the rate the recording was captured at.
func (r *Recording) SampleRate() int { return r.sampleRate }

// MaxFrames returns the capacity.
func (r *Recording) MaxFrames() int { return r.maxFrames }

// Frames returns the number of committed frames.
func (r *Recording) Frames() int { return int(r.frames.Load()) }

// Write appends up to numFrames interleaved frames and returns how many fit.
func (r *Recording) Write(samples []float32, numFrames int) int {
	pos := int(r.frames.Load())
	n := min(numFrames, r.maxFrames-pos)
	if n <= 0 {
		return 0
	}
	copy(r.data[pos*r.channels:], samples[:n*r.channels])
	r.frames.Store(int64(pos + n))
	return n
}

// Read copies up to numFrames committed frames starting at frame position
// into dst and returns how many were copied.
func (r *Recording) Read(dst []float32, position, numFrames int) int {
	n := min(numFrames, r.Frames()-position)
	if n <= 0 || position < 0 {
		return 0
	}
	copy(dst, r.data[position*r.channels:(position+n)*r.channels])
	return n
}

// Clear discards the recorded frames. Do not call while a writer is active.
func (r *Recording) Clear() {
	r.frames.Store(0)
}

// Buffer copies the committed frames into a go-audio buffer.
func (r *Recording) Buffer() *audio.Float32Buffer {
	n := r.Frames()
	data := make([]float32, n*r.channels)
	copy(data, r.data)
	return &audio.Float32Buffer{
		Format:         &audio.Format{NumChannels: r.channels, SampleRate: r.sampleRate},
		Data:           data,
		SourceBitDepth: 32,
	}
}

// RecordingSource plays a Recording once. After the end it emits silence.
type RecordingSource struct {
	flowgraph.Node
	Output *flowgraph.OutputPort

	recording *Recording
	position  atomic.Int64
}

// NewRecordingSource creates a player for rec.
func NewRecordingSource(rec *Recording) *RecordingSource {
	s := &RecordingSource{recording: rec}
	s.Output = flowgraph.NewOutputPort(s, rec.Channels())
	s.Init(s)
	return s
}

// Rewind restarts playback from the first frame. Safe from any goroutine.
func (s *RecordingSource) Rewind() { s.position.Store(0) }

// Position returns the next frame to be played.
func (s *RecordingSource) Position() int { return int(s.position.Load()) }

// Done reports whether every recorded frame was played.
func (s *RecordingSource) Done() bool { return s.Position() >= s.recording.Frames() }

// Process copies recorded frames and pads with silence.
func (s *RecordingSource) Process(numFrames int) int {
	channels := s.Output.Channels()
	out := s.Output.Buffer()[:numFrames*channels]
	pos := int(s.position.Load())
	n := s.recording.Read(out, pos, numFrames)
	clear(out[n*channels:])
	s.position.Store(int64(pos + n))
	return numFrames
}
