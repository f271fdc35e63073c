package remote

import "github.com/tphakala/audiostream/internal/logger"

// GetLogger returns the remote control logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("remote")
}
