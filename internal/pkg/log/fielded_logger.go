package log

import (
	"context"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"time"
)

// Fields holds the attributes a FieldedLogger stamps on every entry,
// typically just the component name.
type Fields map[string]any

// FieldedLogger prepends a fixed set of fields to each log entry. A nil
// FieldedLogger is usable and logs without fields, so collaborators built
// as bare struct literals (tests mostly) never have to wire one.
type FieldedLogger struct {
	ctx    context.Context
	fields []any
}

// NewFieldedLogger builds a FieldedLogger, ordering the fields by key so
// entries are stable across runs.
func NewFieldedLogger(args *Fields) *FieldedLogger {
	fields := make([]any, 0, len(*args)*2)
	for _, k := range slices.Sorted(maps.Keys(*args)) {
		fields = append(fields, k, (*args)[k])
	}
	return &FieldedLogger{
		ctx:    context.Background(),
		fields: fields,
	}
}

// Debug logs a message at the debug level with the predefined fields.
func (fl *FieldedLogger) Debug(msg string, args ...any) {
	fl.logWithLevel(slog.LevelDebug, msg, args...)
}

// Info logs a message at the info level with the predefined fields.
func (fl *FieldedLogger) Info(msg string, args ...any) {
	fl.logWithLevel(slog.LevelInfo, msg, args...)
}

// Warn logs a message at the warn level with the predefined fields.
func (fl *FieldedLogger) Warn(msg string, args ...any) {
	fl.logWithLevel(slog.LevelWarn, msg, args...)
}

// Error logs a message at the error level with the predefined fields.
func (fl *FieldedLogger) Error(msg string, args ...any) {
	fl.logWithLevel(slog.LevelError, msg, args...)
}

func (fl *FieldedLogger) logWithLevel(level slog.Level, msg string, args ...any) {
	if fl == nil {
		logWithLevel(level, msg, args...)
		return
	}
	if multiLogger == nil {
		return
	}

	// Code copy from [slog.Logger:log()]
	//
	// This is needed to feed the correct caller frame PC to the Record
	// since we wrapped the [slog.Logger] with our own [FieldedLogger].
	// https://github.com/golang/go/issues/73707#issuecomment-2878940561
	if !multiLogger.Enabled(fl.ctx, level) {
		return
	}
	var pcs [1]uintptr
	// skip [runtime.Callers, this function, this function's caller]
	runtime.Callers(3, pcs[:])

	record := slog.NewRecord(time.Now(), level, msg, pcs[0])
	record.Add(fl.fields...)
	record.Add(args...)
	multiLogger.Handler().Handle(fl.ctx, record)
}
