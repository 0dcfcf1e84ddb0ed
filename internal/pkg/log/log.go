// Package log provides the structured logging used by every component:
// a slog-multi router feeding a colorized console handler and a
// time-rotated log file, wrapped by FieldedLogger for per-component fields.
package log

import (
	"context"
	"log/slog"
	"sync"
)

var (
	multiLogger *slog.Logger
	once        sync.Once
)

// Start initializes the logging package from the global configuration.
// Calling it more than once is a no-op so any package may call it defensively.
func Start() error {
	once.Do(func() {
		cfg := makeConfig()
		multiLogger = cfg.makeMultiLogger()
		slog.SetDefault(multiLogger)
	})

	return nil
}

// Stop flushes and closes the log destinations.
func Stop() {
	if rotatedLogFile != nil {
		rotatedLogFile.Close()
		rotatedLogFile = nil
	}
}

// Public logging methods, for call sites that have no component fields.
func Debug(msg string, args ...any) {
	logWithLevel(slog.LevelDebug, msg, args...)
}

func Info(msg string, args ...any) {
	logWithLevel(slog.LevelInfo, msg, args...)
}

func Warn(msg string, args ...any) {
	logWithLevel(slog.LevelWarn, msg, args...)
}

func Error(msg string, args ...any) {
	logWithLevel(slog.LevelError, msg, args...)
}

func logWithLevel(level slog.Level, msg string, args ...any) {
	if multiLogger == nil {
		return
	}
	multiLogger.Log(context.Background(), level, msg, args...)
}
