package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a slog.Logger writing JSON to stdout at info level.
func New(subsystem string) *slog.Logger {
	return NewWithLevel(os.Stdout, subsystem, "info")
}

// NewWithLevel returns a JSON slog.Logger tagged with subsystem. Unknown
// levels fall back to info.
func NewWithLevel(w io.Writer, subsystem, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     ParseLevel(level),
	})
	return slog.New(handler).With("subsystem", subsystem)
}

// ParseLevel maps debug, info, warn and error to slog levels.
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
