// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"strings"

	"github.com/tphakala/audiostream/internal/engine"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

func validationError(key string, err error) error {
	return errors.New(fmt.Errorf("%s: %w", key, err)).
		Component("conf").
		Category(errors.CategoryValidation).
		Context("key", key).
		Build()
}

// ValidateSettings validates the entire Settings struct. Stream requests
// are checked against the same ranges Open enforces.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateLoggingSettings,
		validateStreamSettings,
		validateEngineSettings,
		validateMetricsSettings,
		validateRemoteSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryValidation).
			Context("error_count", len(ve.Errors)).
			Build()
	}
	return nil
}

func validateLoggingSettings(settings *Settings) error {
	if level := settings.Logging.DefaultLevel; level != "" && !logger.ValidLevel(level) {
		return fmt.Errorf("logging.default_level: unknown level %q", level)
	}
	return nil
}

func validateStreamSettings(settings *Settings) error {
	cfg, err := settings.Stream.StreamConfig()
	if err != nil {
		return err
	}
	return cfg.Validate()
}

func validateEngineSettings(settings *Settings) error {
	e := &settings.Engine
	if _, err := engine.ParseActivity(e.Activity); err != nil {
		return fmt.Errorf("engine.activity: %w", err)
	}
	if _, err := engine.ParseToneType(e.ToneType); err != nil {
		return fmt.Errorf("engine.tonetype: %w", err)
	}
	if e.CallbackSize < 0 {
		return fmt.Errorf("engine.callbacksize: must not be negative, got %d", e.CallbackSize)
	}
	if e.Amplitude < 0 || e.Amplitude > 1 {
		return fmt.Errorf("engine.amplitude: must be within 0..1, got %g", e.Amplitude)
	}
	if e.Frequency <= 0 {
		return fmt.Errorf("engine.frequency: must be positive, got %g", e.Frequency)
	}
	if e.EchoDelay < 0 || e.EchoDelay > engine.MaxEchoDelay {
		return fmt.Errorf("engine.echodelay: must be within 0..%s, got %s", engine.MaxEchoDelay, e.EchoDelay)
	}
	if e.Duration < 0 {
		return fmt.Errorf("engine.duration: must not be negative, got %s", e.Duration)
	}
	return nil
}

func validateMetricsSettings(settings *Settings) error {
	if !settings.Metrics.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Metrics.Listen); err != nil {
		return fmt.Errorf("metrics.listen: %w", err)
	}
	return nil
}

func validateRemoteSettings(settings *Settings) error {
	r := &settings.Remote
	if !r.Enabled {
		return nil
	}
	if r.URL == "" {
		return fmt.Errorf("remote.url: required when remote control is enabled")
	}
	if r.Prefix == "" || strings.ContainsAny(r.Prefix, " *>") {
		return fmt.Errorf("remote.prefix: invalid subject prefix %q", r.Prefix)
	}
	if r.StatusInterval <= 0 {
		return fmt.Errorf("remote.statusinterval: must be positive, got %s", r.StatusInterval)
	}
	return nil
}
