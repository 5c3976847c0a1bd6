package log

import (
	"io"
	"log/slog"
	"strings"
)

// LevelTrace is a custom trace level for slog
// Using LevelDebug - 4 which equals -8
const LevelTrace = slog.LevelDebug - 4

// ConfigLevelStringToSlogLevel maps a configured level name to a slog level.
// Unknown names fall back to error so a typo never makes the shell chatty.
func ConfigLevelStringToSlogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelError
	}
}

// New builds the shell logger. Records at or above level go to primary
// (nil discards them); error records are also mirrored to stderr.
func New(level string, primary io.Writer, stderr io.Writer) *slog.Logger {
	lvl := ConfigLevelStringToSlogLevel(level)

	var p slog.Handler
	if primary != nil {
		p = slog.NewTextHandler(primary, &slog.HandlerOptions{Level: lvl})
	}

	var s slog.Handler
	if stderr != nil {
		s = slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelError})
	}

	return slog.New(NewDualHandler(p, s))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(NewDualHandler(nil, nil))
}
