package logging

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a structured logger on stderr. Production uses JSON
// at Info, anything else uses text. Development and any verbosity above
// zero lower the level to Debug.
func NewLogger(env string, verbosity int) *slog.Logger {
	return newLogger(os.Stderr, env, verbosity)
}

func newLogger(w io.Writer, env string, verbosity int) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env != "production" || verbosity > 0 {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
