package main

import (
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-readmodel-cache/config"
	"github.com/goliatone/go-readmodel-cache/invalidation"
	"github.com/spf13/cobra"
)

func invalidateCmd() *cobra.Command {
	var (
		ev     invalidation.Event
		class  string
		prefix string
		all    bool
		sync   bool
	)

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Invalidate cached read models for an event, a key prefix or everything",
		Example: `  readmodel-worker invalidate --class donation.completed --campaign <id> --organization <id>
  readmodel-worker invalidate --prefix campaign:
  readmodel-worker invalidate --all`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			inv := a.container.Invalidator()
			switch {
			case all:
				inv.InvalidateAll(ctx)
				return nil
			case prefix != "":
				return inv.InvalidatePattern(ctx, prefix)
			case class == "":
				return goerrors.New("one of --class, --prefix or --all is required", goerrors.CategoryBadInput).
					WithTextCode("INVALIDATE_TARGET_REQUIRED")
			}

			ev.Class = invalidation.Class(class)
			ev.EmittedAt = time.Now()
			if len(invalidation.Tags(ev)) == 0 {
				return goerrors.New(fmt.Sprintf("unknown event class %q", class), goerrors.CategoryBadInput).
					WithTextCode("UNKNOWN_EVENT_CLASS")
			}

			// memory queue jobs would die with this process
			if sync || a.cfg.Queue.Backend == config.QueueMemory {
				return inv.Apply(ctx, ev)
			}
			return a.container.Dispatcher().Dispatch(ctx, ev)
		},
	}

	cmd.Flags().StringVar(&class, "class", "", "event class, for example campaign.updated")
	cmd.Flags().StringVar(&ev.CampaignID, "campaign", "", "campaign id")
	cmd.Flags().StringVar(&ev.OrganizationID, "organization", "", "organization id")
	cmd.Flags().StringVar(&ev.DonationID, "donation", "", "donation id")
	cmd.Flags().StringVar(&prefix, "prefix", "", "evict every key starting with prefix")
	cmd.Flags().BoolVar(&all, "all", false, "flush every read model tag")
	cmd.Flags().BoolVar(&sync, "sync", false, "flush now instead of queueing")
	cmd.MarkFlagsMutuallyExclusive("class", "prefix", "all")
	return cmd
}
