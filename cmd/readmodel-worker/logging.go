package main

import (
	"log/slog"
	"os"

	"github.com/goliatone/go-readmodel-cache/config"
	slogmulti "github.com/samber/slog-multi"
)

// newLogger writes text to stdout and, when a failure file is configured,
// fans error records out to it as JSON lines for operators.
func newLogger(cfg config.LogConfig) (*slog.Logger, func() error, error) {
	text := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	if cfg.FailureFile == "" {
		return slog.New(text), func() error { return nil }, nil
	}

	f, err := os.OpenFile(cfg.FailureFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	failures := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelError})
	logger := slog.New(slogmulti.Fanout(text, failures)).With(slog.String("service", "readmodel-worker"))
	return logger, f.Close, nil
}
