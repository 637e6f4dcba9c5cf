package conf

import "github.com/tphakala/ambient-go/internal/logger"

// GetLogger returns the config package logger. It is fetched from the global
// logger each time because settings load before the central logger exists.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
