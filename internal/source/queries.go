package source

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Impact holds platform wide totals for the homepage.
type Impact struct {
	TotalRaised     float64
	DonationCount   int
	DonorCount      int
	ActiveCampaigns int
	Organizations   int
}

// CampaignTotals aggregates completed donations of one campaign.
type CampaignTotals struct {
	CampaignID    uuid.UUID `bun:"campaign_id"`
	Raised        float64   `bun:"raised"`
	DonationCount int       `bun:"donation_count"`
	DonorCount    int       `bun:"donor_count"`
}

// OrganizationTotals aggregates the campaigns and donations of one
// organization.
type OrganizationTotals struct {
	Campaigns       int
	ActiveCampaigns int
	Raised          float64
	DonationCount   int
}

func (s *Source) completedDonations() *bun.SelectQuery {
	return s.db.NewSelect().
		Model((*Donation)(nil)).
		Where("?TableAlias.status = ?", DonationCompleted)
}

// Impact computes the homepage totals.
func (s *Source) Impact(ctx context.Context) (Impact, error) {
	var out Impact

	err := s.completedDonations().
		ColumnExpr("COALESCE(SUM(?TableAlias.amount), 0)").
		ColumnExpr("COUNT(*)").
		ColumnExpr("COUNT(DISTINCT ?TableAlias.donor_id)").
		Scan(ctx, &out.TotalRaised, &out.DonationCount, &out.DonorCount)
	if err != nil {
		return Impact{}, err
	}

	out.ActiveCampaigns, err = s.Campaigns.Count(ctx, WhereEq("status", CampaignActive))
	if err != nil {
		return Impact{}, err
	}

	out.Organizations, err = s.db.NewSelect().
		Model((*Organization)(nil)).
		Where("?TableAlias.status IN (?)", bun.In([]string{OrganizationVerified, OrganizationActive})).
		Count(ctx)
	if err != nil {
		return Impact{}, err
	}
	return out, nil
}

// ActiveCurrencies lists the distinct currencies of active campaigns.
func (s *Source) ActiveCurrencies(ctx context.Context) ([]string, error) {
	currencies := []string{}
	err := s.db.NewSelect().
		Model((*Campaign)(nil)).
		ColumnExpr("DISTINCT ?TableAlias.currency").
		Where("?TableAlias.status = ?", CampaignActive).
		OrderExpr("?TableAlias.currency ASC").
		Scan(ctx, &currencies)
	return currencies, err
}

// FooterPages lists published footer pages by position.
func (s *Source) FooterPages(ctx context.Context) ([]*Page, error) {
	pages, _, err := s.Pages.List(ctx,
		WhereEq("published", true),
		WhereEq("in_footer", true),
		OrderBy("position ASC"),
	)
	return pages, err
}

// FeaturedCampaigns lists up to limit active featured campaigns, newest
// first.
func (s *Source) FeaturedCampaigns(ctx context.Context, limit int) ([]*Campaign, error) {
	campaigns, _, err := s.Campaigns.List(ctx,
		WhereEq("status", CampaignActive),
		WhereEq("featured", true),
		OrderBy("created_at DESC"),
		Paginate(limit, 0),
	)
	return campaigns, err
}

// ActiveCampaigns returns one page of active campaigns and the total count.
func (s *Source) ActiveCampaigns(ctx context.Context, limit, offset int) ([]*Campaign, int, error) {
	return s.Campaigns.List(ctx,
		WhereEq("status", CampaignActive),
		OrderBy("created_at DESC"),
		Paginate(limit, offset),
	)
}

// CampaignTotals returns completed donation totals per campaign. Campaigns
// without donations are absent from the result.
func (s *Source) CampaignTotals(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]CampaignTotals, error) {
	out := make(map[uuid.UUID]CampaignTotals, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []CampaignTotals
	err := s.completedDonations().
		Column("campaign_id").
		ColumnExpr("COALESCE(SUM(?TableAlias.amount), 0) AS raised").
		ColumnExpr("COUNT(*) AS donation_count").
		ColumnExpr("COUNT(DISTINCT ?TableAlias.donor_id) AS donor_count").
		Where("?TableAlias.campaign_id IN (?)", bun.In(ids)).
		Group("campaign_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		out[row.CampaignID] = row
	}
	return out, nil
}

// OrganizationTotals aggregates one organization.
func (s *Source) OrganizationTotals(ctx context.Context, orgID uuid.UUID) (OrganizationTotals, error) {
	var out OrganizationTotals
	var err error

	out.Campaigns, err = s.Campaigns.Count(ctx, WhereEq("organization_id", orgID))
	if err != nil {
		return OrganizationTotals{}, err
	}
	out.ActiveCampaigns, err = s.Campaigns.Count(ctx,
		WhereEq("organization_id", orgID),
		WhereEq("status", CampaignActive),
	)
	if err != nil {
		return OrganizationTotals{}, err
	}

	err = s.completedDonations().
		ColumnExpr("COALESCE(SUM(?TableAlias.amount), 0)").
		ColumnExpr("COUNT(*)").
		Where("?TableAlias.organization_id = ?", orgID).
		Scan(ctx, &out.Raised, &out.DonationCount)
	if err != nil {
		return OrganizationTotals{}, err
	}
	return out, nil
}

// CampaignsByIDs loads the campaigns among ids. Unknown ids are skipped.
func (s *Source) CampaignsByIDs(ctx context.Context, ids []uuid.UUID) ([]*Campaign, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	campaigns, _, err := s.Campaigns.List(ctx, WhereIDIn(ids), Paginate(len(ids), 0))
	return campaigns, err
}

// OrganizationsByIDs loads the organizations among ids.
func (s *Source) OrganizationsByIDs(ctx context.Context, ids []uuid.UUID) ([]*Organization, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	orgs, _, err := s.Organizations.List(ctx, WhereIDIn(ids), Paginate(len(ids), 0))
	return orgs, err
}
