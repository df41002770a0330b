package main

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-readmodel-cache/config"
	"github.com/goliatone/go-readmodel-cache/pkg/di"
	"github.com/spf13/cobra"
)

var configPath string

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "readmodel-worker",
		Short:        "Read model cache worker",
		Long:         `Consume cache invalidation jobs, warm stats snapshots and run cache maintenance.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./readmodel.yaml)")

	cmd.AddCommand(
		runCmd(),
		invalidateCmd(),
		warmCmd(),
		bumpVersionCmd(),
		purgeExpiredCmd(),
	)
	return cmd
}

// app is what every command needs: the loaded config, the root logger and
// the wired container.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	container *di.Container
	closeLogs func() error
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, closeLogs, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	container, err := di.NewContainer(ctx, *cfg, di.WithLogger(logger))
	if err != nil {
		_ = closeLogs()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, container: container, closeLogs: closeLogs}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.container.Close(ctx); err != nil {
		a.logger.Warn("shutdown incomplete", "error", err)
	}
	_ = a.closeLogs()
}
