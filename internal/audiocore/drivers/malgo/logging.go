package malgo

import "github.com/tphakala/audiostream/internal/logger"

// GetLogger returns the logger for the malgo driver
func GetLogger() logger.Logger {
	return logger.Global().Module("malgo")
}
