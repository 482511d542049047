package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds a JSON logger for production use. slog keeps the standard
// library feel while emitting structured lines any backend can ingest.
func NewLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     levelFromString(level),
		AddSource: true,
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// WithComponent tags every line from one subsystem (gateway, sweeper, ...).
func WithComponent(log *slog.Logger, name string) *slog.Logger {
	return log.With("component", name)
}

func levelFromString(level string) slog.Leveler {
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
