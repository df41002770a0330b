package readmodels

import (
	"context"

	"github.com/goliatone/go-readmodel-cache/internal/source"
	"github.com/goliatone/go-readmodel-cache/readmodel"
	"github.com/goliatone/go-readmodel-cache/repositorycache"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var _ repositorycache.Builder[Campaign] = (*CampaignBuilder)(nil)

// CampaignBuilder projects campaigns with their completed donation totals.
type CampaignBuilder struct {
	src   *source.Source
	clock clockwork.Clock
}

func NewCampaignBuilder(src *source.Source, clock clockwork.Clock) *CampaignBuilder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CampaignBuilder{src: src, clock: clock}
}

func (b *CampaignBuilder) BuildReadModel(ctx context.Context, id string, filters repositorycache.Filters) (Campaign, bool, error) {
	built, err := b.BuildReadModels(ctx, []string{id}, filters)
	if err != nil {
		return Campaign{}, false, err
	}
	c, ok := built[id]
	return c, ok, nil
}

func (b *CampaignBuilder) BuildReadModels(ctx context.Context, ids []string, filters repositorycache.Filters) (map[string]Campaign, error) {
	out := make(map[string]Campaign, len(ids))
	parsed := source.ParseIDs(ids)
	if len(parsed) == 0 {
		return out, nil
	}

	criteria, err := campaignFilters.criteria(filters)
	if err != nil {
		return nil, err
	}
	criteria = append(criteria, source.WhereIDIn(parsed), source.Paginate(len(parsed), 0))

	campaigns, _, err := b.src.Campaigns.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}

	models, err := b.project(ctx, campaigns)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		out[m.ID()] = m
	}
	return out, nil
}

func (b *CampaignBuilder) BuildAllReadModels(ctx context.Context, filters repositorycache.Filters, limit, offset int) ([]Campaign, error) {
	criteria, err := campaignFilters.criteria(filters)
	if err != nil {
		return nil, err
	}
	criteria = append(criteria, source.OrderBy("created_at DESC"), source.Paginate(limit, offset))

	campaigns, _, err := b.src.Campaigns.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	return b.project(ctx, campaigns)
}

func (b *CampaignBuilder) BuildCount(ctx context.Context, filters repositorycache.Filters) (int, error) {
	criteria, err := campaignFilters.criteria(filters)
	if err != nil {
		return 0, err
	}
	return b.src.Campaigns.Count(ctx, criteria...)
}

// project joins campaigns with their totals and organization names.
func (b *CampaignBuilder) project(ctx context.Context, campaigns []*source.Campaign) ([]Campaign, error) {
	if len(campaigns) == 0 {
		return []Campaign{}, nil
	}

	ids := make([]uuid.UUID, 0, len(campaigns))
	orgIDs := make([]uuid.UUID, 0, len(campaigns))
	for _, c := range campaigns {
		ids = append(ids, c.ID)
		orgIDs = append(orgIDs, c.OrganizationID)
	}

	totals, err := b.src.CampaignTotals(ctx, ids)
	if err != nil {
		return nil, err
	}
	orgs, err := b.src.OrganizationsByIDs(ctx, orgIDs)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(orgs))
	for _, org := range orgs {
		names[org.ID] = org.Name
	}

	out := make([]Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, b.campaign(c, names[c.OrganizationID], totals[c.ID]))
	}
	return out, nil
}

func (b *CampaignBuilder) campaign(c *source.Campaign, orgName string, totals source.CampaignTotals) Campaign {
	return NewCampaign(c.ID.String(), readmodel.Data{
		FieldTitle:            c.Title,
		FieldSlug:             c.Slug,
		FieldStatus:           c.Status,
		FieldCurrency:         c.Currency,
		FieldGoal:             c.GoalAmount,
		FieldRaised:           totals.Raised,
		FieldProgress:         Percent(totals.Raised, c.GoalAmount),
		FieldDonationCount:    totals.DonationCount,
		FieldDonorCount:       totals.DonorCount,
		FieldFeatured:         c.Featured,
		FieldOrganizationID:   c.OrganizationID.String(),
		FieldOrganizationName: orgName,
		FieldCreatedAt:        c.CreatedAt.Unix(),
	}, readmodel.WithClock(b.clock))
}
