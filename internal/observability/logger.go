// Package observability provides the service logger and Prometheus metrics.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level     string
	Format    string
	Output    string
	AddSource bool
}

// NewLogger creates the service logger. attrs are attached to every record,
// typically the application name and environment.
func NewLogger(config LoggingConfig, attrs ...any) *slog.Logger {
	var output io.Writer = os.Stdout
	if strings.EqualFold(config.Output, "stderr") {
		output = os.Stderr
	}
	return NewLoggerTo(output, config, attrs...)
}

// NewLoggerTo is NewLogger writing to w instead of the configured output.
func NewLoggerTo(w io.Writer, config LoggingConfig, attrs ...any) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(config.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	if len(attrs) > 0 {
		logger = logger.With(attrs...)
	}
	return logger
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
