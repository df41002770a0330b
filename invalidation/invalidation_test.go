package invalidation_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-readmodel-cache/cache"
	"github.com/goliatone/go-readmodel-cache/internal/cacheinfra"
	"github.com/goliatone/go-readmodel-cache/internal/queue"
	"github.com/goliatone/go-readmodel-cache/invalidation"
	"github.com/goliatone/go-readmodel-cache/pkg/testsupport"
	"github.com/goliatone/go-readmodel-cache/readmodel"
	"github.com/goliatone/go-readmodel-cache/readmodels"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Unix(1700000000, 0).UTC()

type flushRecorder struct {
	mu       sync.Mutex
	tags     []string
	prefixes []string
	failOn   map[string]error
}

func (f *flushRecorder) FlushTags(_ context.Context, tags ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tag := range tags {
		if err := f.failOn[tag]; err != nil {
			return err
		}
		f.tags = append(f.tags, tag)
	}
	return nil
}

func (f *flushRecorder) FlushPrefix(_ context.Context, prefix string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefixes = append(f.prefixes, prefix)
	return 1, nil
}

type tagsOnly struct {
	invalidation.TagFlusher
}

type jobQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *jobQueue) Enqueue(_ context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type scheduled struct {
	Scope invalidation.Scope
	Class invalidation.Class
	Delay time.Duration
}

func (q *jobQueue) scheduled(t *testing.T) []scheduled {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]scheduled, 0, len(q.jobs))
	for _, job := range q.jobs {
		p, err := invalidation.DecodePayload(job.Payload)
		require.NoError(t, err)
		out = append(out, scheduled{Scope: p.Scope, Class: p.Event.Class, Delay: job.Delay})
	}
	return out
}

func TestClass_Parts(t *testing.T) {
	assert.Equal(t, invalidation.EntityDonation, invalidation.DonationCompleted.Entity())
	assert.Equal(t, invalidation.ActionCompleted, invalidation.DonationCompleted.Action())
	assert.Equal(t, invalidation.Entity("weird"), invalidation.Class("weird").Entity())
	assert.Empty(t, invalidation.Class("weird").Action())
}

func TestEvent_EntityID(t *testing.T) {
	ev := invalidation.Event{CampaignID: "5", OrganizationID: "9", DonationID: "d1"}

	ev.Class = invalidation.CampaignUpdated
	assert.Equal(t, "5", ev.EntityID())
	ev.Class = invalidation.DonationCompleted
	assert.Equal(t, "d1", ev.EntityID())
	ev.Class = invalidation.OrganizationVerified
	assert.Equal(t, "9", ev.EntityID())
}

func TestTags(t *testing.T) {
	tests := []struct {
		name     string
		event    invalidation.Event
		expected []string
	}{
		{
			name:  "campaign",
			event: invalidation.Event{Class: invalidation.CampaignUpdated, CampaignID: "5", OrganizationID: "9"},
			expected: []string{
				"campaign:5", "campaign_analytics", "campaigns", "organization:9", "organization_dashboard",
			},
		},
		{
			name:     "campaign without organization",
			event:    invalidation.Event{Class: invalidation.CampaignCreated, CampaignID: "5"},
			expected: []string{"campaign:5", "campaign_analytics", "campaigns", "organization_dashboard"},
		},
		{
			name:     "donation without scope",
			event:    invalidation.Event{Class: invalidation.DonationCreated, DonationID: "d1"},
			expected: []string{"donation_reports", "donations"},
		},
		{
			name:  "donation with campaign and organization",
			event: invalidation.Event{Class: invalidation.DonationCompleted, CampaignID: "5", OrganizationID: "9"},
			expected: []string{
				"campaign:5", "campaign_analytics", "donation_reports", "donations", "organization:9", "organization_dashboard",
			},
		},
		{
			name:     "organization",
			event:    invalidation.Event{Class: invalidation.OrganizationVerified, OrganizationID: "9"},
			expected: []string{"campaigns", "donations", "organization:9", "organization_dashboard"},
		},
		{
			name:  "unknown entity",
			event: invalidation.Event{Class: "page.updated"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, invalidation.Tags(tt.event))
		})
	}
}

func TestInvalidator_FlushesEachTagIndependently(t *testing.T) {
	logger, logs := testsupport.NewRecordingLogger()
	flusher := &flushRecorder{failOn: map[string]error{"campaigns": errors.New("backend down")}}
	inv := invalidation.NewInvalidator(flusher, invalidation.WithLogger(logger))

	inv.InvalidateCampaign(context.Background(), "5", "9")

	assert.ElementsMatch(t, []string{"campaign:5", "campaign_analytics", "organization:9", "organization_dashboard"}, flusher.tags)
	failure, ok := logs.Find("cache tag flush failed")
	require.True(t, ok)
	assert.Equal(t, "campaigns", failure.Attrs["tag"])
}

type untaggedFlusher struct {
	flushRecorder
	calls int
}

func (f *untaggedFlusher) FlushTags(ctx context.Context, tags ...string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.flushRecorder.FlushTags(ctx, tags...)
}

func (f *untaggedFlusher) SupportsTags() bool { return false }

// countingStore hides the tag and prefix capabilities of a store and counts
// full flushes.
type countingStore struct {
	cache.Store
	mu      sync.Mutex
	flushes int
}

func (s *countingStore) Flush(ctx context.Context) error {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
	return s.Store.Flush(ctx)
}

func TestInvalidator_UntaggedFlusherGetsOneCall(t *testing.T) {
	flusher := &untaggedFlusher{}
	inv := invalidation.NewInvalidator(flusher)

	inv.InvalidateCampaign(context.Background(), "5", "9")

	assert.Equal(t, 1, flusher.calls)
	assert.ElementsMatch(t, invalidation.CampaignTags("5", "9"), flusher.tags)
}

func TestInvalidator_UntaggedStoreFlushedOnce(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(now)
	mem, err := cacheinfra.NewMemoryStore(cacheinfra.DefaultConfig(), cacheinfra.WithMemoryClock(clock))
	require.NoError(t, err)
	store := &countingStore{Store: mem}
	strategy, err := cache.NewStrategy(store, readmodels.NewRegistry(), cache.DefaultConfig(), cache.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = strategy.Close(ctx) })
	require.False(t, strategy.SupportsTags())

	invalidation.NewInvalidator(strategy).InvalidateDonation(ctx, "5", "9")

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.flushes)
}

func TestInvalidator_ApplyReturnsFailures(t *testing.T) {
	flusher := &flushRecorder{failOn: map[string]error{"donations": errors.New("backend down")}}
	inv := invalidation.NewInvalidator(flusher)

	err := inv.Apply(context.Background(), invalidation.Event{Class: invalidation.DonationCreated})
	require.Error(t, err)
	assert.Equal(t, []string{"donation_reports"}, flusher.tags)

	assert.NoError(t, inv.Apply(context.Background(), invalidation.Event{Class: "page.updated"}))
}

func TestInvalidator_EntryPoints(t *testing.T) {
	ctx := context.Background()
	flusher := &flushRecorder{}
	inv := invalidation.NewInvalidator(flusher)

	inv.InvalidateDonation(ctx, "", "9")
	assert.ElementsMatch(t, []string{"donation_reports", "donations", "organization:9", "organization_dashboard"}, flusher.tags)

	flusher.tags = nil
	inv.InvalidateOrganization(ctx, "9")
	assert.ElementsMatch(t, invalidation.OrganizationTags("9"), flusher.tags)

	flusher.tags = nil
	inv.InvalidateAll(ctx)
	assert.ElementsMatch(t, readmodels.GlobalTags(), flusher.tags)

	flusher.tags = nil
	inv.Handle(ctx, invalidation.Event{Class: invalidation.OrganizationUpdated, OrganizationID: "9"})
	assert.ElementsMatch(t, invalidation.OrganizationTags("9"), flusher.tags)
}

func TestInvalidator_Pattern(t *testing.T) {
	ctx := context.Background()

	flusher := &flushRecorder{}
	require.NoError(t, invalidation.NewInvalidator(flusher).InvalidatePattern(ctx, "campaign:"))
	assert.Equal(t, []string{"campaign:"}, flusher.prefixes)

	plain := &flushRecorder{}
	require.NoError(t, invalidation.NewInvalidator(tagsOnly{plain}).InvalidatePattern(ctx, "campaign:"))
	assert.Empty(t, plain.prefixes)
	assert.ElementsMatch(t, []string{"campaigns", "campaign"}, plain.tags)
}

// The invalidator evicts entries through a real strategy, leaving entries
// with disjoint tags in place.
func TestInvalidator_WithStrategy(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(now)
	store, err := cacheinfra.NewMemoryStore(cacheinfra.DefaultConfig(), cacheinfra.WithMemoryClock(clock))
	require.NoError(t, err)
	strategy, err := cache.NewStrategy(store, readmodels.NewRegistry(), cache.DefaultConfig(), cache.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = strategy.Close(ctx) })

	campaign := readmodels.NewCampaign("5", readmodel.Data{readmodels.FieldOrganizationID: "9"}, readmodel.WithClock(clock))
	other := readmodels.NewStatsSnapshot("footer_pages", map[string]any{"pages": 2},
		readmodel.WithClock(clock), readmodel.WithTags(readmodels.TagPages))
	strategy.Put(ctx, "campaign:find:5", campaign)
	strategy.Put(ctx, "stats:footer_pages", other)

	inv := invalidation.NewInvalidator(strategy)
	inv.InvalidateDonation(ctx, "5", "")

	_, ok := strategy.Get(ctx, "campaign:find:5")
	assert.False(t, ok)
	_, ok = strategy.Get(ctx, "stats:footer_pages")
	assert.True(t, ok)

	strategy.Put(ctx, "campaign:find:5", campaign)
	require.NoError(t, inv.InvalidatePattern(ctx, invalidation.CampaignKeyPrefix))
	_, ok = strategy.Get(ctx, "campaign:find:5")
	assert.False(t, ok)
}

func TestPolicy_DelayFor(t *testing.T) {
	p := invalidation.DefaultPolicy()
	tests := []struct {
		class    invalidation.Class
		expected time.Duration
	}{
		{invalidation.DonationCompleted, 0},
		{invalidation.CampaignCompleted, 0},
		{invalidation.OrganizationVerified, 0},
		{invalidation.CampaignCreated, 5 * time.Second},
		{invalidation.DonationCreated, 5 * time.Second},
		{invalidation.CampaignActivated, 5 * time.Second},
		{invalidation.OrganizationActivated, 5 * time.Second},
		{invalidation.CampaignUpdated, 15 * time.Second},
		{invalidation.OrganizationUpdated, 15 * time.Second},
		{invalidation.DonationRefunded, 30 * time.Second},
		{invalidation.CampaignDeleted, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, p.DelayFor(tt.class), "class %s", tt.class)
	}
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, invalidation.DefaultPolicy().Validate())

	tests := []struct {
		name   string
		mutate func(*invalidation.Policy)
	}{
		{"negative delay", func(p *invalidation.Policy) { p.HighDelay = -time.Second }},
		{"no tries", func(p *invalidation.Policy) { p.Tries = 0 }},
		{"negative backoff", func(p *invalidation.Policy) { p.Backoff = []time.Duration{-time.Second} }},
		{"short timeout", func(p *invalidation.Policy) { p.Timeout = time.Millisecond }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := invalidation.DefaultPolicy()
			tt.mutate(&p)
			require.Error(t, p.Validate())
		})
	}
}

func newDispatcher(t *testing.T) (*invalidation.Dispatcher, *jobQueue) {
	t.Helper()
	q := &jobQueue{}
	d, err := invalidation.NewDispatcher(q, invalidation.DefaultPolicy())
	require.NoError(t, err)
	return d, q
}

func TestDispatcher_DonationCompletedCascades(t *testing.T) {
	d, q := newDispatcher(t)

	err := d.Dispatch(context.Background(), invalidation.Event{
		Class:          invalidation.DonationCompleted,
		CampaignID:     "5",
		OrganizationID: "9",
		EmittedAt:      now,
	})
	require.NoError(t, err)

	assert.Equal(t, []scheduled{
		{Scope: invalidation.ScopeEvent, Class: invalidation.DonationCompleted, Delay: 0},
		{Scope: invalidation.ScopeCampaign, Class: invalidation.DonationCompleted, Delay: 5 * time.Second},
	}, q.scheduled(t))

	for _, job := range q.jobs {
		assert.Equal(t, invalidation.JobName, job.Name)
		assert.Equal(t, 3, job.Tries)
		assert.Equal(t, []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second}, job.Backoff)
		assert.Equal(t, 60*time.Second, job.Timeout)
	}
}

func TestDispatcher_Cascades(t *testing.T) {
	tests := []struct {
		name     string
		event    invalidation.Event
		expected []scheduled
	}{
		{
			name:  "refunded donation",
			event: invalidation.Event{Class: invalidation.DonationRefunded, CampaignID: "5"},
			expected: []scheduled{
				{invalidation.ScopeEvent, invalidation.DonationRefunded, 30 * time.Second},
				{invalidation.ScopeCampaign, invalidation.DonationRefunded, 35 * time.Second},
			},
		},
		{
			name:  "donation without campaign",
			event: invalidation.Event{Class: invalidation.DonationCompleted},
			expected: []scheduled{
				{invalidation.ScopeEvent, invalidation.DonationCompleted, 0},
			},
		},
		{
			name:  "verified organization",
			event: invalidation.Event{Class: invalidation.OrganizationVerified, OrganizationID: "9"},
			expected: []scheduled{
				{invalidation.ScopeEvent, invalidation.OrganizationVerified, 0},
				{invalidation.ScopeCampaignPattern, invalidation.OrganizationVerified, 5 * time.Second},
			},
		},
		{
			name:  "activated organization",
			event: invalidation.Event{Class: invalidation.OrganizationActivated, OrganizationID: "9"},
			expected: []scheduled{
				{invalidation.ScopeEvent, invalidation.OrganizationActivated, 5 * time.Second},
				{invalidation.ScopeCampaignPattern, invalidation.OrganizationActivated, 10 * time.Second},
			},
		},
		{
			name:  "updated campaign",
			event: invalidation.Event{Class: invalidation.CampaignUpdated, CampaignID: "5"},
			expected: []scheduled{
				{invalidation.ScopeEvent, invalidation.CampaignUpdated, 15 * time.Second},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, q := newDispatcher(t)
			require.NoError(t, d.Dispatch(context.Background(), tt.event))
			assert.Equal(t, tt.expected, q.scheduled(t))
		})
	}
}

func TestDispatcher_DispatchBatchStaggersGroups(t *testing.T) {
	d, q := newDispatcher(t)

	err := d.DispatchBatch(context.Background(), []invalidation.Event{
		{Class: invalidation.CampaignUpdated, CampaignID: "1"},
		{Class: invalidation.DonationCreated, DonationID: "d1"},
		{Class: invalidation.CampaignUpdated, CampaignID: "2"},
		{Class: invalidation.OrganizationUpdated, OrganizationID: "9"},
	})
	require.NoError(t, err)

	assert.Equal(t, []scheduled{
		{invalidation.ScopeEvent, invalidation.CampaignUpdated, 15 * time.Second},
		{invalidation.ScopeEvent, invalidation.CampaignUpdated, 15 * time.Second},
		{invalidation.ScopeEvent, invalidation.DonationCreated, 10 * time.Second},
		{invalidation.ScopeEvent, invalidation.OrganizationUpdated, 25 * time.Second},
	}, q.scheduled(t))
}

func TestDispatcher_EnqueueError(t *testing.T) {
	logger, logs := testsupport.NewRecordingLogger()
	q := &jobQueue{err: errors.New("queue down")}
	d, err := invalidation.NewDispatcher(q, invalidation.DefaultPolicy(), invalidation.WithDispatcherLogger(logger))
	require.NoError(t, err)

	require.Error(t, d.Dispatch(context.Background(), invalidation.Event{Class: invalidation.CampaignUpdated, CampaignID: "5"}))
	_, ok := logs.Find("invalidation job not enqueued")
	assert.True(t, ok)
}

func TestNewDispatcher_InvalidPolicy(t *testing.T) {
	p := invalidation.DefaultPolicy()
	p.Tries = 0
	_, err := invalidation.NewDispatcher(&jobQueue{}, p)
	require.Error(t, err)
}

type staticResolver map[string]bool

func (r staticResolver) Exists(_ context.Context, entity invalidation.Entity, id string) (bool, error) {
	return r[string(entity)+":"+id], nil
}

func jobFor(t *testing.T, ev invalidation.Event) []queue.Job {
	t.Helper()
	d, q := newDispatcher(t)
	require.NoError(t, d.Dispatch(context.Background(), ev))
	return q.jobs
}

func TestJobHandler(t *testing.T) {
	ctx := context.Background()
	ev := invalidation.Event{Class: invalidation.DonationCompleted, CampaignID: "5", OrganizationID: "9", DonationID: "d1"}
	jobs := jobFor(t, ev)
	require.Len(t, jobs, 2)

	t.Run("event scope", func(t *testing.T) {
		flusher := &flushRecorder{}
		h := invalidation.NewJobHandler(invalidation.NewInvalidator(flusher), nil, nil)
		require.NoError(t, h.Handle(ctx, jobs[0]))
		assert.ElementsMatch(t, invalidation.DonationTags("5", "9"), flusher.tags)
	})

	t.Run("campaign scope", func(t *testing.T) {
		flusher := &flushRecorder{}
		h := invalidation.NewJobHandler(invalidation.NewInvalidator(flusher), nil, nil)
		require.NoError(t, h.Handle(ctx, jobs[1]))
		assert.ElementsMatch(t, invalidation.CampaignTags("5", "9"), flusher.tags)
	})

	t.Run("flush failure retries", func(t *testing.T) {
		flusher := &flushRecorder{failOn: map[string]error{"donations": errors.New("down")}}
		h := invalidation.NewJobHandler(invalidation.NewInvalidator(flusher), nil, nil)
		err := h.Handle(ctx, jobs[0])
		require.Error(t, err)
		assert.False(t, queue.IsDiscard(err))
	})

	t.Run("missing model is discarded", func(t *testing.T) {
		flusher := &flushRecorder{}
		h := invalidation.NewJobHandler(invalidation.NewInvalidator(flusher), staticResolver{}, nil)
		err := h.Handle(ctx, jobs[0])
		require.Error(t, err)
		assert.True(t, queue.IsDiscard(err))
		assert.Empty(t, flusher.tags)
	})

	t.Run("existing model is flushed", func(t *testing.T) {
		flusher := &flushRecorder{}
		h := invalidation.NewJobHandler(invalidation.NewInvalidator(flusher), staticResolver{"donation:d1": true}, nil)
		require.NoError(t, h.Handle(ctx, jobs[0]))
		assert.NotEmpty(t, flusher.tags)
	})

	t.Run("deleted events skip the check", func(t *testing.T) {
		deleted := jobFor(t, invalidation.Event{Class: invalidation.CampaignDeleted, CampaignID: "5"})
		flusher := &flushRecorder{}
		h := invalidation.NewJobHandler(invalidation.NewInvalidator(flusher), staticResolver{}, nil)
		require.NoError(t, h.Handle(ctx, deleted[0]))
		assert.Contains(t, flusher.tags, "campaign:5")
	})

	t.Run("pattern scope", func(t *testing.T) {
		pattern := jobFor(t, invalidation.Event{Class: invalidation.OrganizationVerified, OrganizationID: "9"})
		require.Len(t, pattern, 2)
		flusher := &flushRecorder{}
		h := invalidation.NewJobHandler(invalidation.NewInvalidator(flusher), nil, nil)
		require.NoError(t, h.Handle(ctx, pattern[1]))
		assert.Equal(t, []string{invalidation.CampaignKeyPrefix}, flusher.prefixes)
	})

	t.Run("undecodable payload is discarded", func(t *testing.T) {
		h := invalidation.NewJobHandler(invalidation.NewInvalidator(&flushRecorder{}), nil, nil)
		err := h.Handle(ctx, queue.Job{Name: invalidation.JobName, Payload: []byte{0xc1}})
		assert.True(t, queue.IsDiscard(err))
	})
}

func TestSourceResolver(t *testing.T) {
	ctx := context.Background()
	r := invalidation.NewSourceResolver(testsupport.SeedPlatform(t, now))

	ok, err := r.Exists(ctx, invalidation.EntityCampaign, testsupport.CampaignTrees.String())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.Exists(ctx, invalidation.EntityOrganization, uuid.NewString())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.Exists(ctx, invalidation.EntityDonation, "not-a-uuid")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailedSink_LogsFullEvent(t *testing.T) {
	logger, logs := testsupport.NewRecordingLogger()
	jobs := jobFor(t, invalidation.Event{
		Class:          invalidation.DonationCompleted,
		CampaignID:     "5",
		OrganizationID: "9",
		EmittedAt:      now,
	})
	job := jobs[0]
	job.Attempt = 3

	invalidation.FailedSink(logger)(context.Background(), job, errors.New("backend down"))

	rec, ok := logs.Find("cache invalidation failed after retries")
	require.True(t, ok)
	assert.Equal(t, slog.LevelError, rec.Level)
	assert.Equal(t, "donation.completed", rec.Attrs["event_class"])
	assert.Equal(t, "5", rec.Attrs["campaign_id"])
	assert.Equal(t, "9", rec.Attrs["organization_id"])
	assert.EqualValues(t, 3, rec.Attrs["attempts"])
}

// Jobs flow from the dispatcher through a memory queue into the handler.
func TestDispatcher_EndToEndWithMemoryQueue(t *testing.T) {
	clock := clockwork.NewFakeClock()
	q := queue.NewMemoryQueue(queue.WithClock(clock))
	d, err := invalidation.NewDispatcher(q, invalidation.DefaultPolicy())
	require.NoError(t, err)

	flusher := &flushRecorder{}
	h := invalidation.NewJobHandler(invalidation.NewInvalidator(flusher), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Run(ctx, h.Queue())
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	require.NoError(t, d.Dispatch(context.Background(), invalidation.Event{
		Class:      invalidation.DonationCompleted,
		CampaignID: "5",
	}))

	flushed := func(tag string) func() bool {
		return func() bool {
			flusher.mu.Lock()
			defer flusher.mu.Unlock()
			n := 0
			for _, got := range flusher.tags {
				if got == tag {
					n++
				}
			}
			return n == 2
		}
	}

	require.Eventually(t, func() bool { return q.Pending() == 1 }, time.Second, 5*time.Millisecond)
	blockCtx, blockCancel := context.WithTimeout(context.Background(), time.Second)
	defer blockCancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	clock.Advance(5 * time.Second)

	require.Eventually(t, flushed("campaign:5"), time.Second, 5*time.Millisecond)
	assert.Zero(t, q.Pending())
}
