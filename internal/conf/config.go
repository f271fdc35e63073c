// Package conf loads, validates and renders audiostream settings.
package conf

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/quirks"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

// ConfigName is the base name of the configuration file searched for when
// no explicit path is given.
const ConfigName = "audiostream"

// Settings contains all audiostream configuration.
type Settings struct {
	Debug    bool                 `yaml:"debug" mapstructure:"debug"`       // true to force debug logging
	Logging  logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`   // central logger configuration
	Platform PlatformSettings     `yaml:"platform" mapstructure:"platform"` // facts the quirks decision runs on
	Stream   StreamSettings       `yaml:"stream" mapstructure:"stream"`     // stream request template
	Engine   EngineSettings       `yaml:"engine" mapstructure:"engine"`     // activity settings
	Metrics  MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`   // prometheus endpoint
	Remote   RemoteSettings       `yaml:"remote" mapstructure:"remote"`     // nats control and status
}

// PlatformSettings describes the platform the backends run on.
type PlatformSettings struct {
	APILevel   int  `yaml:"apilevel" mapstructure:"apilevel"`     // OS API level
	LowLatency bool `yaml:"lowlatency" mapstructure:"lowlatency"` // low-latency backend available
	Simulated  bool `yaml:"simulated" mapstructure:"simulated"`   // use the in-memory backend instead of devices
}

// StreamSettings is the stream request used by every activity. Enum
// values are names, e.g. format "float" or api "buffer-queue".
type StreamSettings struct {
	API               string `yaml:"api" mapstructure:"api"`
	Direction         string `yaml:"direction" mapstructure:"direction"`
	SampleRate        int    `yaml:"samplerate" mapstructure:"samplerate"`     // 0 lets the backend choose
	ChannelCount      int    `yaml:"channelcount" mapstructure:"channelcount"` // 0 lets the backend choose
	Format            string `yaml:"format" mapstructure:"format"`
	Sharing           string `yaml:"sharing" mapstructure:"sharing"`
	Performance       string `yaml:"performance" mapstructure:"performance"`
	DeviceID          int    `yaml:"deviceid" mapstructure:"deviceid"`
	SessionID         int    `yaml:"sessionid" mapstructure:"sessionid"`
	FormatConversion  bool   `yaml:"formatconversion" mapstructure:"formatconversion"`
	ChannelConversion bool   `yaml:"channelconversion" mapstructure:"channelconversion"`
	SRCQuality        string `yaml:"srcquality" mapstructure:"srcquality"`
}

// EngineSettings configures the activity the engine runs.
type EngineSettings struct {
	Activity     string        `yaml:"activity" mapstructure:"activity"`
	ToneType     string        `yaml:"tonetype" mapstructure:"tonetype"`
	UseCallback  bool          `yaml:"usecallback" mapstructure:"usecallback"`
	CallbackSize int           `yaml:"callbacksize" mapstructure:"callbacksize"` // frames, 0 uses the burst
	ReturnStop   bool          `yaml:"returnstop" mapstructure:"returnstop"`     // return Stop from the next callback
	Amplitude    float64       `yaml:"amplitude" mapstructure:"amplitude"`
	Frequency    float64       `yaml:"frequency" mapstructure:"frequency"`
	EchoDelay    time.Duration `yaml:"echodelay" mapstructure:"echodelay"`
	Duration     time.Duration `yaml:"duration" mapstructure:"duration"` // 0 runs until interrupted
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen  string `yaml:"listen" mapstructure:"listen"` // host:port
}

// RemoteSettings configures the NATS control adapter.
type RemoteSettings struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	URL            string        `yaml:"url" mapstructure:"url"`
	Prefix         string        `yaml:"prefix" mapstructure:"prefix"` // subject prefix
	StatusInterval time.Duration `yaml:"statusinterval" mapstructure:"statusinterval"`
}

// Load reads settings from path, or from the first audiostream.yaml found
// in the default config paths when path is empty. Environment variables
// prefixed with AUDIOSTREAM_ override file values. The result is validated.
func Load(path string, opts ...Option) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("operation", "apply_option").
				Build()
		}
	}

	if err := readConfig(v, path); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	GetLogger().Debug("settings loaded", logger.String("file", v.ConfigFileUsed()))
	return settings, nil
}

// Option adjusts the settings sources before Load reads them.
type Option func(*viper.Viper) error

// WithFlag binds a command line flag to a settings key. A flag given on the
// command line takes precedence over the environment and the file.
func WithFlag(key string, flag *pflag.Flag) Option {
	return func(v *viper.Viper) error {
		return v.BindPFlag(key, flag)
	}
}

// WithOverride forces a settings key to value.
func WithOverride(key string, value any) Option {
	return func(v *viper.Viper) error {
		v.Set(key, value)
		return nil
	}
}

// readConfig reads an explicit file, or searches the default paths. A
// missing file is only an error when it was named explicitly.
func readConfig(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("path", path).
				Build()
		}
		return nil
	}

	v.SetConfigName(ConfigName)
	for _, p := range DefaultConfigPaths() {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read").
			Build()
	}
	return nil
}

// DefaultConfigPaths returns the directories searched for audiostream.yaml:
// the working directory, then the user config directory.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "audiostream"))
	}
	return paths
}

// StreamConfig converts the stream settings into a stream request.
func (s *StreamSettings) StreamConfig() (audiocore.StreamConfig, error) {
	cfg := audiocore.StreamConfig{
		SampleRate:               s.SampleRate,
		ChannelCount:             s.ChannelCount,
		DeviceID:                 s.DeviceID,
		SessionID:                s.SessionID,
		FormatConversionAllowed:  s.FormatConversion,
		ChannelConversionAllowed: s.ChannelConversion,
	}

	var err error
	if cfg.API, err = audiocore.ParseAPI(s.API); err != nil {
		return cfg, validationError("stream.api", err)
	}
	if cfg.Direction, err = audiocore.ParseDirection(s.Direction); err != nil {
		return cfg, validationError("stream.direction", err)
	}
	if cfg.Format, err = audiocore.ParseFormat(s.Format); err != nil {
		return cfg, validationError("stream.format", err)
	}
	if cfg.SharingMode, err = audiocore.ParseSharingMode(s.Sharing); err != nil {
		return cfg, validationError("stream.sharing", err)
	}
	if cfg.PerformanceMode, err = audiocore.ParsePerformanceMode(s.Performance); err != nil {
		return cfg, validationError("stream.performance", err)
	}
	if cfg.SampleRateConversionQuality, err = audiocore.ParseSRCQuality(s.SRCQuality); err != nil {
		return cfg, validationError("stream.srcquality", err)
	}
	return cfg, nil
}

// Quirks returns the platform facts for the quirks decision.
func (p *PlatformSettings) Quirks() quirks.Platform {
	return quirks.Platform{APILevel: p.APILevel, LowLatencyAvailable: p.LowLatency}
}
