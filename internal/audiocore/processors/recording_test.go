package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiostream/internal/audiocore/flowgraph"
)

func TestRecordingCapacity(t *testing.T) {
	t.Parallel()

	rec := NewRecording(2, 48000, 4)
	assert.Equal(t, 3, rec.Write([]float32{1, 2, 3, 4, 5, 6}, 3))
	assert.Equal(t, 1, rec.Write([]float32{7, 8, 9, 10}, 2))
	assert.Equal(t, 0, rec.Write([]float32{0, 0}, 1))
	assert.Equal(t, 4, rec.Frames())

	dst := make([]float32, 4)
	assert.Equal(t, 2, rec.Read(dst, 2, 5))
	assert.Equal(t, []float32{5, 6, 7, 8}, dst)

	buf := rec.Buffer()
	require.NotNil(t, buf.Format)
	assert.Equal(t, 2, buf.Format.NumChannels)
	assert.Equal(t, 48000, buf.Format.SampleRate)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, buf.Data)

	rec.Clear()
	assert.Equal(t, 0, rec.Frames())
	assert.Empty(t, rec.Buffer().Data)
}

func TestRecordingSourcePlaysOnceThenSilence(t *testing.T) {
	t.Parallel()

	rec := NewRecording(1, 8000, 16)
	rec.Write([]float32{0.1, 0.2, 0.3}, 3)

	src := NewRecordingSource(rec)
	require.Equal(t, 5, src.Pull(flowgraph.NextCallCount(), 5))
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0, 0}, src.Output.Buffer()[:5])
	assert.True(t, src.Done())

	src.Rewind()
	assert.False(t, src.Done())
	src.Pull(flowgraph.NextCallCount(), 2)
	assert.Equal(t, 2, src.Position())
}

func TestInputAnalyzerPeaks(t *testing.T) {
	t.Parallel()

	a := NewInputAnalyzer(2)
	a.Analyze([]float32{0.5, -0.8, -0.25, 0.1}, 2)
	assert.InDelta(t, 0.5, a.Peak(0), 1e-7)
	assert.InDelta(t, 0.8, a.Peak(1), 1e-7)

	// Quiet block decays the held level
	a.Analyze([]float32{0, 0}, 1)
	assert.InDelta(t, 0.5*PeakDecay, a.Peak(0), 1e-6)
	assert.InDelta(t, 0.8*PeakDecay, a.Peak(1), 1e-6)
	assert.InDelta(t, 0, a.Peak(5), 0)
	assert.Len(t, a.Peaks(), 2)

	a.Reset()
	assert.InDelta(t, 0, a.Peak(1), 0)
}

func TestInputAnalyzerRecords(t *testing.T) {
	t.Parallel()

	a := NewInputAnalyzer(1)
	rec := NewRecording(1, 48000, 100)
	a.SetRecording(rec)
	a.Analyze([]float32{0.1, 0.2, 0.3}, 3)
	assert.Equal(t, 3, rec.Frames())

	a.SetRecording(nil)
	a.Analyze([]float32{0.4}, 1)
	assert.Equal(t, 3, rec.Frames())
	assert.Nil(t, a.Recording())
}
