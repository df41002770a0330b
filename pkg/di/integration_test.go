package di

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-readmodel-cache/internal/source"
	"github.com/goliatone/go-readmodel-cache/invalidation"
	"github.com/goliatone/go-readmodel-cache/pkg/testsupport"
	"github.com/goliatone/go-readmodel-cache/repositorycache"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A donation completes: the queued invalidation evicts the cached campaign
// and the homepage stats, and the next reads see the new totals.
func TestIntegration_DonationInvalidatesThroughQueue(t *testing.T) {
	cfg := testConfig()
	opt := withMiniredis(t, &cfg)
	c, clock := newTestContainer(t, cfg, opt)
	strategy := c.Strategy()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	homepageKey := "stats:homepage_impact:all"
	require.Eventually(t, func() bool {
		_, ok := strategy.Get(ctx, homepageKey)
		return ok
	}, 2*time.Second, 10*time.Millisecond, "warmer should populate the homepage stats")

	trees := testsupport.CampaignTrees.String()
	campaign, found, err := c.Campaigns().Find(ctx, trees, nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 350.0, campaign.Raised(), 0.001)

	findKey := c.Campaigns().BuildCacheKey(repositorycache.OpFind, trees, nil)
	_, ok := strategy.Get(ctx, findKey)
	require.True(t, ok)

	_, err = c.Source().Donations.Create(ctx, &source.Donation{
		ID:             uuid.New(),
		CampaignID:     testsupport.CampaignTrees,
		OrganizationID: testsupport.OrgGreenEarth,
		DonorID:        "donor-e",
		Amount:         150,
		Currency:       "EUR",
		Status:         source.DonationCompleted,
		CreatedAt:      clock.Now(),
	})
	require.NoError(t, err)

	err = c.Dispatcher().Dispatch(ctx, invalidation.Event{
		Class:          invalidation.DonationCompleted,
		CampaignID:     trees,
		OrganizationID: testsupport.OrgGreenEarth.String(),
		EmittedAt:      clock.Now(),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, cached := strategy.Get(ctx, findKey)
		_, warm := strategy.Get(ctx, homepageKey)
		return !cached && !warm
	}, 2*time.Second, 10*time.Millisecond, "donation should evict campaign and homepage entries")

	campaign, found, err = c.Campaigns().Find(ctx, trees, nil)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, 500.0, campaign.Raised(), 0.001)
	assert.InDelta(t, 3000.0, c.Stats().HomepageImpact(ctx).Float("total_raised"), 0.001)

	cancel()
	require.NoError(t, <-done)
}

// Synchronous invalidation evicts only the tags the event touches.
func TestIntegration_SynchronousInvalidation(t *testing.T) {
	cfg := testConfig()
	opt := withMiniredis(t, &cfg)
	c, _ := newTestContainer(t, cfg, opt)
	ctx := context.Background()
	strategy := c.Strategy()

	solar := testsupport.CampaignSolar.String()
	trees := testsupport.CampaignTrees.String()
	_, err := c.Campaigns().FindMany(ctx, []string{solar, trees}, nil)
	require.NoError(t, err)
	footer := c.Stats().FooterPages(ctx)
	require.False(t, footer.IsFallback())

	c.Invalidator().InvalidateCampaign(ctx, solar, testsupport.OrgGreenEarth.String())

	_, ok := strategy.Get(ctx, c.Campaigns().BuildCacheKey(repositorycache.OpFind, solar, nil))
	assert.False(t, ok, "updated campaign is evicted")
	_, ok = strategy.Get(ctx, c.Campaigns().BuildCacheKey(repositorycache.OpFind, trees, nil))
	assert.True(t, ok, "sibling campaign stays cached")
	_, ok = strategy.Get(ctx, "stats:footer_pages:all")
	assert.True(t, ok, "footer pages do not depend on campaigns")
}

// A global version bump hides every entry without touching the store.
func TestIntegration_BumpCacheVersion(t *testing.T) {
	cfg := testConfig()
	opt := withMiniredis(t, &cfg)
	c, _ := newTestContainer(t, cfg, opt)
	ctx := context.Background()

	c.Stats().ActiveCurrencies(ctx)
	_, ok := c.Strategy().Get(ctx, "stats:active_currencies:all")
	require.True(t, ok)

	_, err := c.Strategy().BumpCacheVersion(ctx)
	require.NoError(t, err)

	_, ok = c.Strategy().Get(ctx, "stats:active_currencies:all")
	assert.False(t, ok)
}
