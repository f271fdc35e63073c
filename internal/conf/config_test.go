package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/quirks"
	"github.com/tphakala/audiostream/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audiostream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	settings, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.False(t, settings.Debug)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	require.NotNil(t, settings.Logging.Console)
	assert.True(t, settings.Logging.Console.Enabled)

	assert.Equal(t, quirks.APILevelP, settings.Platform.APILevel)
	assert.True(t, settings.Platform.LowLatency)

	cfg, err := settings.Stream.StreamConfig()
	require.NoError(t, err)
	assert.Equal(t, audiocore.DefaultStreamConfig(), cfg)

	assert.Equal(t, "test-output", settings.Engine.Activity)
	assert.Equal(t, "sine", settings.Engine.ToneType)
	assert.True(t, settings.Engine.UseCallback)
	assert.InDelta(t, 440.0, settings.Engine.Frequency, 0)
	assert.Equal(t, 500*time.Millisecond, settings.Engine.EchoDelay)

	assert.False(t, settings.Metrics.Enabled)
	assert.Equal(t, DefaultMetricsListen, settings.Metrics.Listen)
	assert.Equal(t, DefaultRemotePrefix, settings.Remote.Prefix)
	assert.Equal(t, DefaultStatusInterval, settings.Remote.StatusInterval)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
platform:
  apilevel: 26
  lowlatency: false
stream:
  direction: input
  format: float
  channelcount: 1
  samplerate: 44100
  srcquality: none
engine:
  activity: echo
  echodelay: 250ms
  callbacksize: 96
metrics:
  enabled: true
  listen: ":9100"
`)
	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, quirks.Platform{APILevel: 26, LowLatencyAvailable: false}, settings.Platform.Quirks())

	cfg, err := settings.Stream.StreamConfig()
	require.NoError(t, err)
	assert.Equal(t, audiocore.DirectionInput, cfg.Direction)
	assert.Equal(t, audiocore.FormatFloat, cfg.Format)
	assert.Equal(t, 1, cfg.ChannelCount)
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, audiocore.SRCQualityNone, cfg.SampleRateConversionQuality)

	assert.Equal(t, "echo", settings.Engine.Activity)
	assert.Equal(t, 250*time.Millisecond, settings.Engine.EchoDelay)
	assert.Equal(t, 96, settings.Engine.CallbackSize)
	assert.True(t, settings.Metrics.Enabled)
	assert.Equal(t, ":9100", settings.Metrics.Listen)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("AUDIOSTREAM_ENGINE_ACTIVITY", "tap-to-tone")
	t.Setenv("AUDIOSTREAM_STREAM_CHANNELCOUNT", "4")
	t.Setenv("AUDIOSTREAM_PLATFORM_SIMULATED", "true")
	t.Setenv("AUDIOSTREAM_REMOTE_PREFIX", "lab.bench1")

	settings, err := Load(writeConfig(t, "engine:\n  activity: echo\n"))
	require.NoError(t, err)

	assert.Equal(t, "tap-to-tone", settings.Engine.Activity)
	assert.Equal(t, 4, settings.Stream.ChannelCount)
	assert.True(t, settings.Platform.Simulated)
	assert.Equal(t, "lab.bench1", settings.Remote.Prefix)
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Float64("frequency", 0, "")
	flags.Bool("simulated", false, "")
	require.NoError(t, flags.Parse([]string{"--frequency=880"}))

	settings, err := Load(writeConfig(t, "engine:\n  frequency: 220\nplatform:\n  simulated: true\n"),
		WithFlag("engine.frequency", flags.Lookup("frequency")),
		WithFlag("platform.simulated", flags.Lookup("simulated")),
		WithOverride("engine.activity", "echo"),
	)
	require.NoError(t, err)

	assert.InDelta(t, 880.0, settings.Engine.Frequency, 1e-9)
	assert.True(t, settings.Platform.Simulated, "unset flag must not override the file")
	assert.Equal(t, "echo", settings.Engine.Activity)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("AUDIOSTREAM_ENGINE_USECALLBACK", "sometimes")

	_, err := Load(writeConfig(t, ""))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Contains(t, err.Error(), "AUDIOSTREAM_ENGINE_USECALLBACK")
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		key     string
	}{
		{"too many channels", "stream:\n  channelcount: 300\n", "out of range"},
		{"unknown api", "stream:\n  api: jack\n", "stream.api"},
		{"unknown format", "stream:\n  format: i24\n", "stream.format"},
		{"unknown activity", "engine:\n  activity: karaoke\n", "engine.activity"},
		{"unknown tone", "engine:\n  tonetype: square\n", "engine.tonetype"},
		{"negative callback size", "engine:\n  callbacksize: -1\n", "engine.callbacksize"},
		{"amplitude above one", "engine:\n  amplitude: 1.5\n", "engine.amplitude"},
		{"echo delay too long", "engine:\n  echodelay: 5s\n", "engine.echodelay"},
		{"bad metrics address", "metrics:\n  enabled: true\n  listen: nowhere\n", "metrics.listen"},
		{"wildcard remote prefix", "remote:\n  enabled: true\n  prefix: \"a.*\"\n", "remote.prefix"},
		{"unknown log level", "logging:\n  default_level: loud\n", "logging.default_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation), "got %v", err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestDumpReloadsToSameSettings(t *testing.T) {
	t.Parallel()

	original, err := Load(writeConfig(t, "engine:\n  activity: record-play\n  echodelay: 750ms\nremote:\n  statusinterval: 2s\n"))
	require.NoError(t, err)

	data, err := Dump(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), "activity: record-play")
	assert.Contains(t, string(data), "echodelay: 750ms")

	path := filepath.Join(t.TempDir(), "nested", "audiostream.yaml")
	require.NoError(t, SaveYAMLConfig(path, original))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original.Platform, reloaded.Platform)
	assert.Equal(t, original.Stream, reloaded.Stream)
	assert.Equal(t, original.Engine, reloaded.Engine)
	assert.Equal(t, original.Metrics, reloaded.Metrics)
	assert.Equal(t, original.Remote, reloaded.Remote)
	assert.Equal(t, original.Logging.DefaultLevel, reloaded.Logging.DefaultLevel)
}
