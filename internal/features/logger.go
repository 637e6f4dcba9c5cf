package features

import (
	"sync"

	"github.com/tphakala/ambient-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the features package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("features")
	})
	return serviceLogger
}
