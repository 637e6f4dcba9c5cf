package logger

import (
	"io"
	"log/slog"
	"time"
)

// NewWriterLogger returns a logger writing text records at the given level to
// w, without touching the global logger. Used by tests to capture output.
func NewWriterLogger(w io.Writer, level LogLevel) Logger {
	cl := &CentralLogger{
		config:       &LoggingConfig{DefaultLevel: string(level)},
		timezone:     time.UTC,
		moduleLevels: make(map[string]slog.Level),
		baseHandler:  newTextHandler(w, parseLogLevel(string(level)), time.UTC),
	}
	return cl.Module("")
}

// Discard returns a logger that drops every record.
func Discard() Logger {
	return NewWriterLogger(io.Discard, LogLevelError)
}
