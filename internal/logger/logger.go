package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup builds a JSON slog.Logger writing to w at the given level.
// Unknown level names fall back to info.
func Setup(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler)
}

// SetupDefault installs the JSON logger as the process-wide default.
func SetupDefault(w io.Writer, level string) *slog.Logger {
	l := Setup(w, level)
	slog.SetDefault(l)
	return l
}

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
