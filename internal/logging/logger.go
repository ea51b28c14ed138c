// Package logging provides structured logging for go-borg-arena, and the
// persistent output log that records everything the server and bots print.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a new structured logger on stderr with the specified format and level.
// Format should be "json" or "text".
// Level should be "debug", "info", "warn", or "error".
func NewLogger(format, level string, verbose bool) *slog.Logger {
	return slog.New(newHandler(os.Stderr, format, level, verbose, "json"))
}

// NewLoggerWithWriter creates a logger that writes to a custom writer.
// Useful for testing, and for the dashboard which owns the terminal.
func NewLoggerWithWriter(w io.Writer, format, level string) *slog.Logger {
	if w == nil {
		w = io.Discard
	}
	return slog.New(newHandler(w, format, level, false, "text"))
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newHandler builds a JSON or text handler. Unknown formats use fallback.
func newHandler(w io.Writer, format, level string, verbose bool, fallback string) slog.Handler {
	logLevel := parseLevel(level)
	if verbose {
		logLevel = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
		// Source location only helps at debug level
		AddSource: verbose && logLevel == slog.LevelDebug,
	}

	f := strings.ToLower(format)
	if f != "json" && f != "text" {
		f = fallback
	}
	if f == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
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

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
