package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Consume invalidation jobs and warm stats until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.WithoutCancel(ctx))

			a.logger.Info("worker started",
				"store", a.cfg.Store.Backend,
				"queue", a.cfg.Queue.Backend,
				"workers", a.cfg.Queue.Workers)
			err = a.container.Run(ctx)
			a.logger.Info("worker stopped")
			return err
		},
	}
}
