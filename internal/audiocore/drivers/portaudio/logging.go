package portaudio

import "github.com/tphakala/audiostream/internal/logger"

// GetLogger returns the logger for the portaudio driver
func GetLogger() logger.Logger {
	return logger.Global().Module("portaudio")
}
