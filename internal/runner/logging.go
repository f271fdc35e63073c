package runner

import "github.com/tphakala/audiostream/internal/logger"

// GetLogger returns the runner logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("runner")
}
