package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Constants for logging levels
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Environments the logger output format depends on
const (
	EnvDevelopment = "dev"
	EnvProduction  = "prod"
)

// Logger interface defines the logging contract
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

// New picks the handler by environment: JSON for production, text for anything else
func New(environment string, level string) (Logger, error) {
	switch environment {
	case EnvProduction:
		return NewJSONLogger(level)
	case EnvDevelopment, "":
		return NewTextLogger(level)
	default:
		return nil, fmt.Errorf("unknown environment %q", environment)
	}
}

// NewTextLogger creates a new text logger with the specified level
// Writes to stderr, so stdout stays free for command output
func NewTextLogger(level string) (Logger, error) {
	return newLogger(os.Stderr, level, func(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
		return slog.NewTextHandler(w, opts)
	})
}

// NewJSONLogger creates a new JSON logger with the specified level
func NewJSONLogger(level string) (Logger, error) {
	return newLogger(os.Stderr, level, func(w io.Writer, opts *slog.HandlerOptions) slog.Handler {
		return slog.NewJSONHandler(w, opts)
	})
}

// NewNoOpLogger creates a logger that discards all log messages
func NewNoOpLogger() Logger {
	logger := slog.New(slog.DiscardHandler)
	return &slogLogger{logger: logger}
}

func newLogger(w io.Writer, level string, handler func(io.Writer, *slog.HandlerOptions) slog.Handler) (Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   true,
		ReplaceAttr: replace,
	}

	return &slogLogger{logger: slog.New(handler(w, opts))}, nil
}
