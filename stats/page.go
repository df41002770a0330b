package stats

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/goliatone/go-readmodel-cache/internal/source"
	"github.com/goliatone/go-readmodel-cache/readmodels"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Listing page sizes.
const (
	DefaultPerPage = 12
	MaxPerPage     = 100
)

// FeaturedLimit is how many featured campaigns the homepage shows.
const FeaturedLimit = 6

// PageSource is the data the page calculators read. *source.Source
// implements it.
type PageSource interface {
	Impact(ctx context.Context) (source.Impact, error)
	ActiveCurrencies(ctx context.Context) ([]string, error)
	FooterPages(ctx context.Context) ([]*source.Page, error)
	FeaturedCampaigns(ctx context.Context, limit int) ([]*source.Campaign, error)
	ActiveCampaigns(ctx context.Context, limit, offset int) ([]*source.Campaign, int, error)
	CampaignTotals(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]source.CampaignTotals, error)
}

// PageStats calculates the snapshots shown on public pages.
type PageStats struct {
	calculator
	src PageSource
}

// NewPageStats returns page calculators. clock and logger may be nil.
func NewPageStats(src PageSource, policy TTLPolicy, clock clockwork.Clock, logger *slog.Logger) *PageStats {
	return &PageStats{calculator: newCalculator(policy, clock, logger), src: src}
}

func (p *PageStats) homepageTarget() target {
	return target{
		name:  NameHomepageImpact,
		scope: scopeAll,
		ttl:   p.policy.HomepageImpact,
		tags:  pageTags(readmodels.TagCampaigns, readmodels.TagDonations),
	}
}

// HomepageImpact returns platform wide totals.
func (p *PageStats) HomepageImpact(ctx context.Context) Snapshot {
	t := p.homepageTarget()
	impact, err := p.src.Impact(ctx)
	if err != nil {
		return p.fallback(ctx, t, err, Snapshot{
			"total_raised":     0.0,
			"donation_count":   0,
			"donor_count":      0,
			"active_campaigns": 0,
			"organizations":    0,
		})
	}
	return p.stamp(t, Snapshot{
		"total_raised":     impact.TotalRaised,
		"donation_count":   impact.DonationCount,
		"donor_count":      impact.DonorCount,
		"active_campaigns": impact.ActiveCampaigns,
		"organizations":    impact.Organizations,
	})
}

func (p *PageStats) currenciesTarget() target {
	return target{
		name:  NameActiveCurrencies,
		scope: scopeAll,
		ttl:   p.policy.Currencies,
		tags:  pageTags(readmodels.TagCurrencies, readmodels.TagCampaigns),
	}
}

// ActiveCurrencies returns the sorted currencies of active campaigns.
func (p *PageStats) ActiveCurrencies(ctx context.Context) Snapshot {
	t := p.currenciesTarget()
	currencies, err := p.src.ActiveCurrencies(ctx)
	if err != nil {
		return p.fallback(ctx, t, err, Snapshot{"currencies": []string{}, "count": 0})
	}
	if currencies == nil {
		currencies = []string{}
	}
	return p.stamp(t, Snapshot{
		"currencies": currencies,
		"count":      len(currencies),
	})
}

func (p *PageStats) footerTarget() target {
	return target{
		name:  NameFooterPages,
		scope: scopeAll,
		ttl:   p.policy.FooterPages,
		tags:  pageTags(readmodels.TagPages),
	}
}

// FooterPages returns the published footer links in position order.
func (p *PageStats) FooterPages(ctx context.Context) Snapshot {
	t := p.footerTarget()
	pages, err := p.src.FooterPages(ctx)
	if err != nil {
		return p.fallback(ctx, t, err, Snapshot{"pages": []map[string]any{}, "count": 0})
	}
	items := make([]map[string]any, 0, len(pages))
	for _, page := range pages {
		items = append(items, map[string]any{
			"slug":     page.Slug,
			"title":    page.Title,
			"position": page.Position,
		})
	}
	return p.stamp(t, Snapshot{"pages": items, "count": len(items)})
}

func (p *PageStats) featuredTarget() target {
	return target{
		name:  NameFeaturedCampaigns,
		scope: scopeAll,
		ttl:   p.policy.FeaturedCampaigns,
		tags:  pageTags(readmodels.TagCampaigns, readmodels.TagCampaignAnalytics),
	}
}

// FeaturedCampaigns returns the featured active campaigns with totals.
func (p *PageStats) FeaturedCampaigns(ctx context.Context) Snapshot {
	t := p.featuredTarget()
	campaigns, err := p.src.FeaturedCampaigns(ctx, FeaturedLimit)
	if err == nil {
		var items []map[string]any
		items, err = p.campaignItems(ctx, campaigns)
		if err == nil {
			return p.stamp(t, Snapshot{"campaigns": items, "count": len(items)})
		}
	}
	return p.fallback(ctx, t, err, Snapshot{"campaigns": []map[string]any{}, "count": 0})
}

// NormalizePage clamps page and perPage to valid values.
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

func (p *PageStats) listingTarget(page, perPage int) target {
	return target{
		name:  NameCampaignListing,
		scope: pageLabel(page, perPage),
		ttl:   p.policy.CampaignListing,
		tags:  pageTags(readmodels.TagCampaigns),
	}
}

// CampaignListing returns one page of active campaigns, newest first.
func (p *PageStats) CampaignListing(ctx context.Context, page, perPage int) Snapshot {
	page, perPage = NormalizePage(page, perPage)
	t := p.listingTarget(page, perPage)

	campaigns, total, err := p.src.ActiveCampaigns(ctx, perPage, (page-1)*perPage)
	if err == nil {
		var items []map[string]any
		items, err = p.campaignItems(ctx, campaigns)
		if err == nil {
			return p.stamp(t, Snapshot{
				"campaigns": items,
				"total":     total,
				"page":      page,
				"per_page":  perPage,
				"pages":     (total + perPage - 1) / perPage,
			})
		}
	}
	return p.fallback(ctx, t, err, Snapshot{
		"campaigns": []map[string]any{},
		"total":     0,
		"page":      page,
		"per_page":  perPage,
		"pages":     0,
	})
}

func (p *PageStats) campaignItems(ctx context.Context, campaigns []*source.Campaign) ([]map[string]any, error) {
	ids := make([]uuid.UUID, 0, len(campaigns))
	for _, c := range campaigns {
		ids = append(ids, c.ID)
	}
	totals, err := p.src.CampaignTotals(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]any, 0, len(campaigns))
	for _, c := range campaigns {
		raised := totals[c.ID].Raised
		items = append(items, map[string]any{
			"id":              c.ID.String(),
			"title":           c.Title,
			"slug":            c.Slug,
			"currency":        c.Currency,
			"goal_amount":     c.GoalAmount,
			"raised":          raised,
			"progress":        readmodels.Percent(raised, c.GoalAmount),
			"organization_id": c.OrganizationID.String(),
		})
	}
	return items, nil
}

func pageLabel(page, perPage int) string {
	return strconv.Itoa(page) + "x" + strconv.Itoa(perPage)
}
