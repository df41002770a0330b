package readmodels

import (
	"context"

	"github.com/goliatone/go-readmodel-cache/internal/source"
	"github.com/goliatone/go-readmodel-cache/readmodel"
	"github.com/goliatone/go-readmodel-cache/repositorycache"
	"github.com/jonboulle/clockwork"
)

var _ repositorycache.Builder[Organization] = (*OrganizationBuilder)(nil)

// OrganizationBuilder projects organizations with their dashboard totals.
type OrganizationBuilder struct {
	src   *source.Source
	clock clockwork.Clock
}

func NewOrganizationBuilder(src *source.Source, clock clockwork.Clock) *OrganizationBuilder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &OrganizationBuilder{src: src, clock: clock}
}

func (b *OrganizationBuilder) BuildReadModel(ctx context.Context, id string, filters repositorycache.Filters) (Organization, bool, error) {
	built, err := b.BuildReadModels(ctx, []string{id}, filters)
	if err != nil {
		return Organization{}, false, err
	}
	o, ok := built[id]
	return o, ok, nil
}

func (b *OrganizationBuilder) BuildReadModels(ctx context.Context, ids []string, filters repositorycache.Filters) (map[string]Organization, error) {
	out := make(map[string]Organization, len(ids))
	parsed := source.ParseIDs(ids)
	if len(parsed) == 0 {
		return out, nil
	}

	criteria, err := organizationFilters.criteria(filters)
	if err != nil {
		return nil, err
	}
	criteria = append(criteria, source.WhereIDIn(parsed), source.Paginate(len(parsed), 0))

	orgs, _, err := b.src.Organizations.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	for _, org := range orgs {
		m, err := b.project(ctx, org)
		if err != nil {
			return nil, err
		}
		out[m.ID()] = m
	}
	return out, nil
}

func (b *OrganizationBuilder) BuildAllReadModels(ctx context.Context, filters repositorycache.Filters, limit, offset int) ([]Organization, error) {
	criteria, err := organizationFilters.criteria(filters)
	if err != nil {
		return nil, err
	}
	criteria = append(criteria, source.OrderBy("name ASC"), source.Paginate(limit, offset))

	orgs, _, err := b.src.Organizations.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}

	out := make([]Organization, 0, len(orgs))
	for _, org := range orgs {
		m, err := b.project(ctx, org)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (b *OrganizationBuilder) BuildCount(ctx context.Context, filters repositorycache.Filters) (int, error) {
	criteria, err := organizationFilters.criteria(filters)
	if err != nil {
		return 0, err
	}
	return b.src.Organizations.Count(ctx, criteria...)
}

func (b *OrganizationBuilder) project(ctx context.Context, org *source.Organization) (Organization, error) {
	totals, err := b.src.OrganizationTotals(ctx, org.ID)
	if err != nil {
		return Organization{}, err
	}

	verified := org.Status == source.OrganizationVerified || org.Status == source.OrganizationActive
	return NewOrganization(org.ID.String(), readmodel.Data{
		FieldName:            org.Name,
		FieldSlug:            org.Slug,
		FieldStatus:          org.Status,
		FieldCountry:         org.Country,
		FieldVerified:        verified,
		FieldCampaignCount:   totals.Campaigns,
		FieldActiveCampaigns: totals.ActiveCampaigns,
		FieldRaised:          totals.Raised,
		FieldDonationCount:   totals.DonationCount,
	}, readmodel.WithClock(b.clock)), nil
}
