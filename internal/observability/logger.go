package observability

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger writes JSON records to stdout. Every record carries the service
// and environment, plus trace, span and request ids when the context has
// them.
func NewLogger(env string) *slog.Logger {
	return NewLoggerTo(os.Stdout, env)
}

func NewLoggerTo(w io.Writer, env string) *slog.Logger {
	var level slog.Level
	switch env {
	case "dev":
		level = slog.LevelDebug
	case "test":
		level = slog.LevelWarn
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})

	return slog.New(NewTraceHandler(handler)).With("service", "booknotes", "env", env)
}
