// Package analysis implements the run modes: the realtime daemon, fixed
// period capture cycles and single file classification.
package analysis

import (
	"sync"

	"github.com/tphakala/ambient-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the analysis package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("analysis")
	})
	return serviceLogger
}
