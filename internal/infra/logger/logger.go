package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process logger: text for dev, JSON otherwise. level is one of
// debug, info, warn, error; an empty level means debug in dev and info elsewhere.
func New(env, level string) *slog.Logger {
	return NewTo(os.Stdout, env, level)
}

func NewTo(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(env, level)}
	if env == "dev" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(env, level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if env == "dev" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
