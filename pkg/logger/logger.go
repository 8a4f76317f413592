package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level represents the logging level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// Global logger instance
var globalLogger *Logger

// Init initializes the global logger with the given level and format
// ("text" or "json") writing to stdout.
func Init(level Level, format string) {
	globalLogger = New(level, format, os.Stdout)
	slog.SetDefault(globalLogger.Logger)
}

// New builds a logger writing to the given destination. Used directly by
// tests that want to capture output.
func New(level Level, format string, w io.Writer) *Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(string(level)) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Get returns the global logger instance
func Get() *Logger {
	if globalLogger == nil {
		// Fallback when Init was never called
		globalLogger = New(InfoLevel, "text", os.Stdout)
	}
	return globalLogger
}

// With returns a new logger with additional attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a logger scoped to one bridge component
// (pool, session, api, storage).
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// ErrorWithErr logs an error message with an error object
func (l *Logger) ErrorWithErr(msg string, err error, args ...any) {
	args = append(args, slog.Any("error", err))
	l.Logger.Error(msg, args...)
}
