// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/msomdec/locomotiva-cache/internal/config"
)

// New returns a logger writing to stdout in the configured format. With
// JSONMirror set, records are also written as JSON to stderr.
func New(cfg config.LogConfig) (*slog.Logger, error) {
	return newLogger(cfg, os.Stdout, os.Stderr)
}

func newLogger(cfg config.LogConfig, stdout, stderr io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var primary slog.Handler
	switch cfg.Format {
	case "", "text":
		primary = slog.NewTextHandler(stdout, opts)
	case "json":
		primary = slog.NewJSONHandler(stdout, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	if !cfg.JSONMirror {
		return slog.New(primary), nil
	}
	return slog.New(slog.NewMultiHandler(primary, slog.NewJSONHandler(stderr, opts))), nil
}

// ParseLevel maps a level name onto a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
