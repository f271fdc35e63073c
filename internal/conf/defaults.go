// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/quirks"
	"github.com/tphakala/audiostream/internal/engine"
	"github.com/tphakala/audiostream/internal/logger"
)

// Default values that do not come from another package.
const (
	DefaultMetricsListen  = "127.0.0.1:9464"
	DefaultRemoteURL      = "nats://127.0.0.1:4222"
	DefaultRemotePrefix   = "audiostream"
	DefaultStatusInterval = time.Second
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.console.json", false)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("platform.apilevel", quirks.APILevelP)
	v.SetDefault("platform.lowlatency", true)
	v.SetDefault("platform.simulated", false)

	v.SetDefault("stream.api", audiocore.APIUnspecified.String())
	v.SetDefault("stream.direction", audiocore.DirectionOutput.String())
	v.SetDefault("stream.samplerate", 0)
	v.SetDefault("stream.channelcount", 0)
	v.SetDefault("stream.format", audiocore.FormatUnspecified.String())
	v.SetDefault("stream.sharing", audiocore.SharingShared.String())
	v.SetDefault("stream.performance", audiocore.PerformanceLowLatency.String())
	v.SetDefault("stream.deviceid", 0)
	v.SetDefault("stream.sessionid", audiocore.SessionIDNone)
	v.SetDefault("stream.formatconversion", true)
	v.SetDefault("stream.channelconversion", true)
	v.SetDefault("stream.srcquality", audiocore.SRCQualityMedium.String())

	v.SetDefault("engine.activity", engine.ActivityTestOutput.String())
	v.SetDefault("engine.tonetype", engine.ToneSine.String())
	v.SetDefault("engine.usecallback", true)
	v.SetDefault("engine.callbacksize", 0)
	v.SetDefault("engine.returnstop", false)
	v.SetDefault("engine.amplitude", float64(engine.DefaultAmplitude))
	v.SetDefault("engine.frequency", engine.DefaultFrequency)
	v.SetDefault("engine.echodelay", engine.DefaultEchoDelay)
	v.SetDefault("engine.duration", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", DefaultMetricsListen)

	v.SetDefault("remote.enabled", false)
	v.SetDefault("remote.url", DefaultRemoteURL)
	v.SetDefault("remote.prefix", DefaultRemotePrefix)
	v.SetDefault("remote.statusinterval", DefaultStatusInterval)
}
