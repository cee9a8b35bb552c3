// Package logging configures structured logging for all components.
package logging

import (
	"log/slog"
	"os"
)

// Common field names for consistent logging across components.
const (
	FieldComponent = "component"
	FieldRemote    = "remote"
	FieldMatchID   = "match_id"
	FieldKind      = "kind"
	FieldError     = "error"
)

// New creates a logger with the specified level and format.
// format can be "json" or "text" (default is json).
func New(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
