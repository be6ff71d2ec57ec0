// Package util provides shared helpers for logging, retries, and rate
// limiting.
package util

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a structured slog logger at the given level with either
// a "json" or "text" handler. Unrecognized levels default to info;
// unrecognized formats default to JSON.
func NewLogger(level, format string) *slog.Logger {
	return NewLoggerTo(os.Stdout, level, format)
}

// NewLoggerTo is NewLogger writing to an explicit destination, which tests
// use to capture output.
func NewLoggerTo(w io.Writer, level, format string) *slog.Logger {
	var slevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slevel = slog.LevelDebug
	case "info":
		slevel = slog.LevelInfo
	case "warn":
		slevel = slog.LevelWarn
	case "error":
		slevel = slog.LevelError
	default:
		slevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: slevel}
	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// SetDefault installs the logger as the default slog logger.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
