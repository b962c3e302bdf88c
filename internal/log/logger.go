package log

import (
	"io"
	"log/slog"
)

// New returns a redacting logger writing to w.
// verbose lowers the level from Info to Debug; jsonFormat selects the JSON handler.
func New(w io.Writer, verbose, jsonFormat bool) *slog.Logger {
	if jsonFormat {
		return NewSecureJSONLogger(w, verbose)
	}
	return NewSecureLogger(w, verbose)
}

// NewSecureLogger creates a redacting slog.Logger with text output.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger creates a redacting slog.Logger with JSON output,
// for log aggregation on hosting platforms.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

// Discard returns a logger that drops every record. It is used by
// library code when the caller passes a nil logger.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewLevel returns a redacting logger with an explicit minimum level.
// The CLI uses it to keep progress output readable when a spinner is shown.
func NewLevel(w io.Writer, level slog.Level, jsonFormat bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if jsonFormat {
		return slog.New(NewSecureHandler(slog.NewJSONHandler(w, opts)))
	}
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, opts)))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
