package stats

import (
	"context"
	"log/slog"

	"github.com/goliatone/go-readmodel-cache/cache"
	"github.com/goliatone/go-readmodel-cache/internal/logctx"
	"github.com/goliatone/go-readmodel-cache/readmodel"
	"github.com/goliatone/go-readmodel-cache/readmodels"
	"github.com/goliatone/go-readmodel-cache/warming"
)

// Cached serves calculator output through a cache strategy. Snapshots are
// stored as readmodels.StatsSnapshot under their stats key, with their TTL
// tier and tags. Fallback snapshots are returned but never stored.
type Cached struct {
	pages    *PageStats
	widgets  *WidgetStats
	strategy *cache.Strategy
	logger   *slog.Logger
}

// NewCached wraps the calculators. logger may be nil.
func NewCached(strategy *cache.Strategy, pages *PageStats, widgets *WidgetStats, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{pages: pages, widgets: widgets, strategy: strategy, logger: logger}
}

type calcFunc func(ctx context.Context) Snapshot

func (c *Cached) build(t target, calc calcFunc) cache.TypedBuildFunc[readmodels.StatsSnapshot] {
	return func(ctx context.Context) (readmodels.StatsSnapshot, error) {
		snap := calc(ctx)
		opts := []readmodel.Option{
			readmodel.WithTTL(t.ttl),
			readmodel.WithTags(t.tags...),
			readmodel.WithClock(c.strategy.Clock()),
		}
		if snap.IsFallback() {
			opts = append(opts, readmodel.NotCacheable())
		}
		return readmodels.NewStatsSnapshot(t.id(), snap, opts...), nil
	}
}

func (c *Cached) putOptions(t target) []cache.PutOption {
	return []cache.PutOption{cache.WithTTL(t.ttl), cache.WithTags(t.tags...)}
}

func (c *Cached) remember(ctx context.Context, t target, calc calcFunc) Snapshot {
	rm, err := cache.RememberAs(ctx, c.strategy, t.key(), c.build(t, calc), c.putOptions(t)...)
	if err != nil {
		logctx.FromContextOr(ctx, c.logger).WarnContext(ctx, "cached stats unavailable, calculating directly",
			"key", t.key(), "error", err)
		return calc(ctx)
	}
	return Snapshot(rm.Map())
}

func (c *Cached) HomepageImpact(ctx context.Context) Snapshot {
	return c.remember(ctx, c.pages.homepageTarget(), c.pages.HomepageImpact)
}

func (c *Cached) ActiveCurrencies(ctx context.Context) Snapshot {
	return c.remember(ctx, c.pages.currenciesTarget(), c.pages.ActiveCurrencies)
}

func (c *Cached) FooterPages(ctx context.Context) Snapshot {
	return c.remember(ctx, c.pages.footerTarget(), c.pages.FooterPages)
}

func (c *Cached) FeaturedCampaigns(ctx context.Context) Snapshot {
	return c.remember(ctx, c.pages.featuredTarget(), c.pages.FeaturedCampaigns)
}

func (c *Cached) CampaignListing(ctx context.Context, page, perPage int) Snapshot {
	page, perPage = NormalizePage(page, perPage)
	return c.remember(ctx, c.pages.listingTarget(page, perPage), func(ctx context.Context) Snapshot {
		return c.pages.CampaignListing(ctx, page, perPage)
	})
}

func (c *Cached) CampaignPerformance(ctx context.Context, campaignID string) Snapshot {
	return c.remember(ctx, c.widgets.campaignTarget(campaignID), func(ctx context.Context) Snapshot {
		return c.widgets.CampaignPerformance(ctx, campaignID)
	})
}

func (c *Cached) OrganizationSummary(ctx context.Context, orgID string) Snapshot {
	return c.remember(ctx, c.widgets.organizationTarget(orgID), func(ctx context.Context) Snapshot {
		return c.widgets.OrganizationSummary(ctx, orgID)
	})
}

func (c *Cached) warmTarget(t target, calc calcFunc) warming.Target {
	build := c.build(t, calc)
	return warming.Target{
		Name: t.name,
		Key:  t.key(),
		Build: func(ctx context.Context) (readmodel.ReadModel, error) {
			return build(ctx)
		},
		Options: c.putOptions(t),
	}
}

// WarmTargets lists the page snapshots worth keeping warm: every public page
// calculator and the first listing page at the default size.
func (c *Cached) WarmTargets() []warming.Target {
	first := func(ctx context.Context) Snapshot {
		return c.pages.CampaignListing(ctx, 1, DefaultPerPage)
	}
	return []warming.Target{
		c.warmTarget(c.pages.homepageTarget(), c.pages.HomepageImpact),
		c.warmTarget(c.pages.currenciesTarget(), c.pages.ActiveCurrencies),
		c.warmTarget(c.pages.footerTarget(), c.pages.FooterPages),
		c.warmTarget(c.pages.featuredTarget(), c.pages.FeaturedCampaigns),
		c.warmTarget(c.pages.listingTarget(1, DefaultPerPage), first),
	}
}
