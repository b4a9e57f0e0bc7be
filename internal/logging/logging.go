// Package logging builds the process-wide structured logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	// Level is one of debug, info, warn or error. Anything else means info.
	Level string
	// Format is "json" or "text". Empty means json.
	Format string
	// File, when set, receives a copy of every record.
	File string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New creates a *slog.Logger and installs it as the slog default. The
// returned cleanup func closes the log file if one was opened; callers must
// defer it.
func New(opts Options) (*slog.Logger, func(), error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	writers := []io.Writer{out}
	cleanup := func() {}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		writers = append(writers, f)
		cleanup = func() { _ = f.Close() }
	}

	w := io.MultiWriter(writers...)
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	case "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		cleanup()
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, cleanup, nil
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
