package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActivity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Activity
	}{
		{"", ActivityTestOutput},
		{"tone", ActivityTestOutput},
		{"test_input", ActivityTestInput},
		{"tap", ActivityTapToTone},
		{"record-play", ActivityRecordPlay},
		{"ECHO", ActivityEcho},
		{"rt-latency", ActivityRTLatency},
		{"glitches", ActivityGlitches},
	}
	for _, tt := range tests {
		got, err := ParseActivity(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseActivity("karaoke")
	require.Error(t, err)
}

func TestActivityWiring(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ActivityTestOutput, ActivityRTLatency.configuredAs())
	assert.True(t, ActivityGlitches.IsFullDuplex())
	assert.True(t, ActivityEcho.IsFullDuplex())
	assert.False(t, ActivityTapToTone.IsFullDuplex())
	assert.True(t, ActivityRecordPlay.IsInput())
	assert.False(t, ActivityRTLatency.IsInput())
	assert.False(t, Activity(7).Valid())
	assert.Equal(t, "echo", ActivityEcho.String())
}

func TestParseToneType(t *testing.T) {
	t.Parallel()

	for _, tone := range []ToneType{ToneSine, ToneSawtooth, ToneSawPing, ToneImpulse} {
		got, err := ParseToneType(tone.String())
		require.NoError(t, err)
		assert.Equal(t, tone, got)
	}
	_, err := ParseToneType("square")
	require.Error(t, err)
	assert.Contains(t, ToneType(8).String(), "8")
}
