package observability

import "github.com/tphakala/audiostream/internal/logger"

// GetLogger returns the telemetry logger. It is fetched from the global
// logger on each call so it follows the logger configured at startup.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
