// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/engine"
	"github.com/tphakala/audiostream/internal/errors"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "AUDIOSTREAM"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the environment variables that are validated
// before use. Every other key is still read through AutomaticEnv.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "AUDIOSTREAM_DEBUG", validateEnvBool},
		{"platform.simulated", "AUDIOSTREAM_PLATFORM_SIMULATED", validateEnvBool},
		{"platform.apilevel", "AUDIOSTREAM_PLATFORM_APILEVEL", validateEnvInt},

		{"stream.api", "AUDIOSTREAM_STREAM_API", validateEnvParser(audiocore.ParseAPI)},
		{"stream.direction", "AUDIOSTREAM_STREAM_DIRECTION", validateEnvParser(audiocore.ParseDirection)},
		{"stream.format", "AUDIOSTREAM_STREAM_FORMAT", validateEnvParser(audiocore.ParseFormat)},
		{"stream.samplerate", "AUDIOSTREAM_STREAM_SAMPLERATE", validateEnvInt},
		{"stream.channelcount", "AUDIOSTREAM_STREAM_CHANNELCOUNT", validateEnvInt},

		{"engine.activity", "AUDIOSTREAM_ENGINE_ACTIVITY", validateEnvParser(engine.ParseActivity)},
		{"engine.tonetype", "AUDIOSTREAM_ENGINE_TONETYPE", validateEnvParser(engine.ParseToneType)},
		{"engine.usecallback", "AUDIOSTREAM_ENGINE_USECALLBACK", validateEnvBool},
		{"engine.duration", "AUDIOSTREAM_ENGINE_DURATION", validateEnvDuration},

		{"metrics.enabled", "AUDIOSTREAM_METRICS_ENABLED", validateEnvBool},
		{"remote.enabled", "AUDIOSTREAM_REMOTE_ENABLED", validateEnvBool},
		{"remote.url", "AUDIOSTREAM_REMOTE_URL", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return errors.Newf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - ")).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	_, err := strconv.ParseBool(value)
	return err
}

func validateEnvInt(value string) error {
	_, err := strconv.Atoi(value)
	return err
}

func validateEnvDuration(value string) error {
	_, err := time.ParseDuration(value)
	return err
}

// validateEnvParser adapts an enum parser into a validator.
func validateEnvParser[T any](parse func(string) (T, error)) func(string) error {
	return func(value string) error {
		_, err := parse(value)
		return err
	}
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return bindEnvVars(v)
}
