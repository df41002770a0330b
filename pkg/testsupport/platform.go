package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-readmodel-cache/internal/dbopen"
	"github.com/goliatone/go-readmodel-cache/internal/source"
	"github.com/google/uuid"
)

// Identifiers of the seeded platform.
var (
	OrgGreenEarth  = uuid.MustParse("0000000a-0000-4000-8000-000000000001")
	OrgCleanWater  = uuid.MustParse("0000000a-0000-4000-8000-000000000002")
	CampaignTrees  = uuid.MustParse("0000000c-0000-4000-8000-000000000001")
	CampaignSolar  = uuid.MustParse("0000000c-0000-4000-8000-000000000002")
	CampaignWells  = uuid.MustParse("0000000c-0000-4000-8000-000000000003")
	CampaignDrafts = uuid.MustParse("0000000c-0000-4000-8000-000000000004")
)

// OpenSource opens an in-memory SQLite database with the source schema.
// The database is closed when the test ends.
func OpenSource(t testing.TB) *source.Source {
	t.Helper()

	db, err := dbopen.Open(dbopen.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	src := source.New(db)
	if err := src.CreateSchema(context.Background()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return src
}

// SeedPlatform opens a source and fills it with a small fixed data set:
//
//   - Green Earth (verified): Trees (active, EUR, featured) raised 350 from 2
//     donors, Solar (active, USD) raised 500, Drafts (draft)
//   - Clean Water (pending): Wells (completed, EUR) raised 2000
//
// Pending and refunded donations exist but never count. Footer pages are
// privacy then about.
func SeedPlatform(t testing.TB, now time.Time) *source.Source {
	t.Helper()

	ctx := context.Background()
	src := OpenSource(t)

	orgs := []*source.Organization{
		{ID: OrgGreenEarth, Name: "Green Earth", Slug: "green-earth", Status: source.OrganizationVerified, Country: "DE"},
		{ID: OrgCleanWater, Name: "Clean Water", Slug: "clean-water", Status: source.OrganizationPending, Country: "KE"},
	}
	for _, org := range orgs {
		org.CreatedAt, org.UpdatedAt = now.Add(-72*time.Hour), now.Add(-72*time.Hour)
		if _, err := src.Organizations.Create(ctx, org); err != nil {
			t.Fatalf("seed organization %s: %v", org.Slug, err)
		}
	}

	campaigns := []*source.Campaign{
		{ID: CampaignTrees, OrganizationID: OrgGreenEarth, Title: "Plant Trees", Slug: "plant-trees", Status: source.CampaignActive, Currency: "EUR", GoalAmount: 1000, Featured: true, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: CampaignSolar, OrganizationID: OrgGreenEarth, Title: "Solar Schools", Slug: "solar-schools", Status: source.CampaignActive, Currency: "USD", GoalAmount: 5000, CreatedAt: now.Add(-24 * time.Hour)},
		{ID: CampaignWells, OrganizationID: OrgCleanWater, Title: "Village Wells", Slug: "village-wells", Status: source.CampaignCompleted, Currency: "EUR", GoalAmount: 2000, CreatedAt: now.Add(-96 * time.Hour)},
		{ID: CampaignDrafts, OrganizationID: OrgGreenEarth, Title: "Ocean Cleanup", Slug: "ocean-cleanup", Status: source.CampaignDraft, Currency: "GBP", GoalAmount: 800, CreatedAt: now.Add(-1 * time.Hour)},
	}
	for _, c := range campaigns {
		c.UpdatedAt = c.CreatedAt
		if _, err := src.Campaigns.Create(ctx, c); err != nil {
			t.Fatalf("seed campaign %s: %v", c.Slug, err)
		}
	}

	donations := []struct {
		campaign uuid.UUID
		org      uuid.UUID
		donor    string
		amount   float64
		currency string
		status   string
	}{
		{CampaignTrees, OrgGreenEarth, "donor-a", 100, "EUR", source.DonationCompleted},
		{CampaignTrees, OrgGreenEarth, "donor-b", 250, "EUR", source.DonationCompleted},
		{CampaignTrees, OrgGreenEarth, "donor-a", 50, "EUR", source.DonationPending},
		{CampaignSolar, OrgGreenEarth, "donor-c", 500, "USD", source.DonationCompleted},
		{CampaignSolar, OrgGreenEarth, "donor-a", 75, "USD", source.DonationRefunded},
		{CampaignWells, OrgCleanWater, "donor-d", 2000, "EUR", source.DonationCompleted},
	}
	for i, d := range donations {
		record := &source.Donation{
			ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(i)}),
			CampaignID:     d.campaign,
			OrganizationID: d.org,
			DonorID:        d.donor,
			Amount:         d.amount,
			Currency:       d.currency,
			Status:         d.status,
			CreatedAt:      now.Add(-time.Duration(len(donations)-i) * time.Hour),
		}
		if _, err := src.Donations.Create(ctx, record); err != nil {
			t.Fatalf("seed donation %d: %v", i, err)
		}
	}

	pages := []*source.Page{
		{ID: uuid.NewSHA1(uuid.NameSpaceURL, []byte("about")), Slug: "about", Title: "About", Published: true, InFooter: true, Position: 2},
		{ID: uuid.NewSHA1(uuid.NameSpaceURL, []byte("privacy")), Slug: "privacy", Title: "Privacy", Published: true, InFooter: true, Position: 1},
		{ID: uuid.NewSHA1(uuid.NameSpaceURL, []byte("blog")), Slug: "blog", Title: "Blog", Published: true, InFooter: false, Position: 3},
		{ID: uuid.NewSHA1(uuid.NameSpaceURL, []byte("terms")), Slug: "terms", Title: "Terms", Published: false, InFooter: true, Position: 4},
	}
	for _, p := range pages {
		if _, err := src.Pages.Create(ctx, p); err != nil {
			t.Fatalf("seed page %s: %v", p.Slug, err)
		}
	}

	return src
}
