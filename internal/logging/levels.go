package logging

import (
	"context"
	"log/slog"
)

// LevelRaw is the lowest level and carries verbatim child process output.
const LevelRaw = slog.LevelDebug - 4

// Raw logs line at LevelRaw. The line is passed through untouched as the
// message.
func Raw(logger *slog.Logger, line string, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), LevelRaw, line, attrs...)
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	case level >= slog.LevelDebug:
		return "DEBUG"
	default:
		return "RAW"
	}
}
