package stats

import (
	"context"
	"log/slog"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-readmodel-cache/internal/source"
	"github.com/goliatone/go-readmodel-cache/readmodels"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ErrUnknownSubject reports a widget asked for a campaign or organization
// that does not exist.
var ErrUnknownSubject = goerrors.New("widget subject not found", goerrors.CategoryNotFound).
	WithTextCode("WIDGET_SUBJECT_NOT_FOUND")

// WidgetSource is the data the widget calculators read. *source.Source
// implements it.
type WidgetSource interface {
	CampaignsByIDs(ctx context.Context, ids []uuid.UUID) ([]*source.Campaign, error)
	CampaignTotals(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]source.CampaignTotals, error)
	OrganizationsByIDs(ctx context.Context, ids []uuid.UUID) ([]*source.Organization, error)
	OrganizationTotals(ctx context.Context, orgID uuid.UUID) (source.OrganizationTotals, error)
}

// WidgetStats calculates the embeddable per campaign and per organization
// widgets. A widget for an unknown subject is a fallback with found set to
// false.
type WidgetStats struct {
	calculator
	src WidgetSource
}

// NewWidgetStats returns widget calculators. clock and logger may be nil.
func NewWidgetStats(src WidgetSource, policy TTLPolicy, clock clockwork.Clock, logger *slog.Logger) *WidgetStats {
	return &WidgetStats{calculator: newCalculator(policy, clock, logger), src: src}
}

func (w *WidgetStats) campaignTarget(id string) target {
	return target{
		name:  NameCampaignPerformance,
		scope: id,
		ttl:   w.policy.Widgets,
		tags:  []string{readmodels.CampaignTag(id), readmodels.TagCampaignAnalytics},
	}
}

// CampaignPerformance returns the fundraising progress of one campaign.
func (w *WidgetStats) CampaignPerformance(ctx context.Context, campaignID string) Snapshot {
	t := w.campaignTarget(campaignID)
	snap, err := w.campaignPerformance(ctx, campaignID)
	if err != nil {
		return w.fallback(ctx, t, err, Snapshot{
			"campaign_id":    campaignID,
			"found":          false,
			"title":          "",
			"currency":       "",
			"goal_amount":    0.0,
			"raised":         0.0,
			"progress":       0.0,
			"donation_count": 0,
			"donor_count":    0,
		})
	}
	return w.stamp(t, snap)
}

func (w *WidgetStats) campaignPerformance(ctx context.Context, campaignID string) (Snapshot, error) {
	id, err := uuid.Parse(campaignID)
	if err != nil {
		return nil, goerrors.Wrap(ErrUnknownSubject, goerrors.CategoryNotFound, "invalid campaign id")
	}
	campaigns, err := w.src.CampaignsByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(campaigns) == 0 {
		return nil, ErrUnknownSubject
	}
	c := campaigns[0]

	totals, err := w.src.CampaignTotals(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	tot := totals[id]
	return Snapshot{
		"campaign_id":    campaignID,
		"found":          true,
		"title":          c.Title,
		"currency":       c.Currency,
		"goal_amount":    c.GoalAmount,
		"raised":         tot.Raised,
		"progress":       readmodels.Percent(tot.Raised, c.GoalAmount),
		"donation_count": tot.DonationCount,
		"donor_count":    tot.DonorCount,
	}, nil
}

func (w *WidgetStats) organizationTarget(id string) target {
	return target{
		name:  NameOrganizationSummary,
		scope: id,
		ttl:   w.policy.Widgets,
		tags:  []string{readmodels.OrganizationTag(id), readmodels.TagOrganizationDashboard},
	}
}

// OrganizationSummary returns campaign and donation totals for one
// organization.
func (w *WidgetStats) OrganizationSummary(ctx context.Context, orgID string) Snapshot {
	t := w.organizationTarget(orgID)
	snap, err := w.organizationSummary(ctx, orgID)
	if err != nil {
		return w.fallback(ctx, t, err, Snapshot{
			"organization_id":  orgID,
			"found":            false,
			"name":             "",
			"campaigns":        0,
			"active_campaigns": 0,
			"raised":           0.0,
			"donation_count":   0,
		})
	}
	return w.stamp(t, snap)
}

func (w *WidgetStats) organizationSummary(ctx context.Context, orgID string) (Snapshot, error) {
	id, err := uuid.Parse(orgID)
	if err != nil {
		return nil, goerrors.Wrap(ErrUnknownSubject, goerrors.CategoryNotFound, "invalid organization id")
	}
	orgs, err := w.src.OrganizationsByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, ErrUnknownSubject
	}

	totals, err := w.src.OrganizationTotals(ctx, id)
	if err != nil {
		return nil, err
	}
	return Snapshot{
		"organization_id":  orgID,
		"found":            true,
		"name":             orgs[0].Name,
		"campaigns":        totals.Campaigns,
		"active_campaigns": totals.ActiveCampaigns,
		"raised":           totals.Raised,
		"donation_count":   totals.DonationCount,
	}, nil
}
