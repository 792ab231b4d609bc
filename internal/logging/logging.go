package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New initializes a new slog logger writing to stdout and sets it as the default.
// format is "text" for development or "json" for production; level is one of
// debug, info, warn, error.
func New(format, level string) *slog.Logger {
	logger := NewWithWriter(os.Stdout, format, level)
	slog.SetDefault(logger)
	return logger
}

// NewWithWriter builds a logger without touching the process default.
func NewWithWriter(w io.Writer, format, level string) *slog.Logger {
	lvl := ParseLevel(level)

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: lvl,
		})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     lvl,
			AddSource: true, // Adds source file and line number
		})
	}

	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
