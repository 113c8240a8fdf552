// Package logger builds the vault's structured logger. Every component
// receives a *slog.Logger at wiring time; nothing logs through the global
// default, so tests and the preloader can run against a discarding logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"photovault/internal/infra/config"
)

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Level resolves a configured level name. Unrecognized names fall back to
// info so a typo in the config raises the volume instead of silencing it.
func Level(name string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(name)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// New builds a logger for the configured level, format, and destination.
// The returned close function flushes a file destination and is a no-op
// for the standard streams.
func New(cfg config.LoggerConfig) (*slog.Logger, func() error, error) {
	w, closeFn, err := destination(cfg.Output)
	if err != nil {
		return nil, nil, fmt.Errorf("log destination %q: %w", cfg.Output, err)
	}

	lvl := Level(cfg.Level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		// Source positions only at debug; the lookup cost is acceptable
		// there and noise everywhere else.
		AddSource: lvl == slog.LevelDebug,
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), closeFn, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// destination maps the configured output to a writer. Anything that is not
// a standard stream name is treated as a file path, opened for append with
// owner-only permissions like the rest of the vault's files.
func destination(target string) (io.Writer, func() error, error) {
	keepOpen := func() error { return nil }

	switch strings.ToLower(target) {
	case "", "stderr":
		return os.Stderr, keepOpen, nil
	case "stdout":
		return os.Stdout, keepOpen, nil
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
