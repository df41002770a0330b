package main

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-readmodel-cache/internal/cacheinfra"
	"github.com/spf13/cobra"
)

func warmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Run one warming pass over the stats snapshots",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			res := a.container.Warmer().WarmOnce(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "built=%d skipped=%d failed=%d\n", res.Built, res.Skipped, res.Failed)
			if res.Failed > 0 {
				return goerrors.New("some targets failed to warm", goerrors.CategoryOperation).
					WithTextCode("WARM_FAILED")
			}
			return nil
		},
	}
}

func bumpVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bump-version",
		Short: "Write a new global cache generation, hiding every cached entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			token, err := a.container.Strategy().BumpCacheVersion(ctx)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryExternal, "bump cache version")
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func purgeExpiredCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-expired",
		Short: "Delete expired rows from the sql cache store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			store, ok := a.container.Store().(*cacheinfra.SQLStore)
			if !ok {
				return goerrors.New("purge-expired needs the sql store", goerrors.CategoryBadInput).
					WithTextCode("SQL_STORE_REQUIRED")
			}
			n, err := store.PurgeExpired(ctx)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryExternal, "purge expired cache rows")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged=%d\n", n)
			return nil
		},
	}
}
