package warming_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-readmodel-cache/cache"
	"github.com/goliatone/go-readmodel-cache/internal/cacheinfra"
	"github.com/goliatone/go-readmodel-cache/readmodel"
	"github.com/goliatone/go-readmodel-cache/readmodels"
	"github.com/goliatone/go-readmodel-cache/warming"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWarmer struct {
	mu    sync.Mutex
	keys  []string
	built map[string]bool
	fail  map[string]error
}

func (f *fakeWarmer) Warm(ctx context.Context, key string, build cache.BuildFunc, _ ...cache.PutOption) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if err := f.fail[key]; err != nil {
		return false, err
	}
	return f.built[key], nil
}

func (f *fakeWarmer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

func targets(names ...string) []warming.Target {
	out := make([]warming.Target, 0, len(names))
	for _, n := range names {
		out = append(out, warming.Target{Name: n, Key: "stats:" + n})
	}
	return out
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, warming.DefaultConfig().Validate())
	require.Error(t, warming.Config{Interval: time.Millisecond}.Validate())
	require.NoError(t, warming.Config{Disabled: true}.Validate())
}

func TestScheduler_SelectsTargets(t *testing.T) {
	cfg := warming.DefaultConfig()
	cfg.Targets = []string{"footer_pages", "unknown"}

	s, err := warming.NewScheduler(&fakeWarmer{}, targets("homepage_impact", "footer_pages"), cfg)
	require.NoError(t, err)
	require.Len(t, s.Targets(), 1)
	assert.Equal(t, "footer_pages", s.Targets()[0].Name)
}

func TestScheduler_WarmOnceCountsOutcomes(t *testing.T) {
	w := &fakeWarmer{
		built: map[string]bool{"stats:a": true},
		fail:  map[string]error{"stats:c": errors.New("builder down")},
	}
	s, err := warming.NewScheduler(w, targets("a", "b", "c"), warming.DefaultConfig())
	require.NoError(t, err)

	res := s.WarmOnce(context.Background())
	assert.Equal(t, warming.Result{Built: 1, Skipped: 1, Failed: 1}, res)
	assert.Equal(t, []string{"stats:a", "stats:b", "stats:c"}, w.keys)
}

func TestScheduler_RunWarmsOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := &fakeWarmer{}
	s, err := warming.NewScheduler(w, targets("a", "b"), warming.Config{Interval: time.Minute}, warming.WithClock(clock))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return w.calls() == 2 }, time.Second, 5*time.Millisecond)

	blockCtx, blockCancel := context.WithTimeout(context.Background(), time.Second)
	defer blockCancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return w.calls() == 4 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_DisabledRunReturns(t *testing.T) {
	w := &fakeWarmer{}
	s, err := warming.NewScheduler(w, targets("a"), warming.Config{Disabled: true})
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))
	assert.Zero(t, w.calls())
}

// Warming through a strategy builds cold entries once.
func TestScheduler_WithStrategy(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Unix(1700000000, 0))
	store, err := cacheinfra.NewMemoryStore(cacheinfra.DefaultConfig(), cacheinfra.WithMemoryClock(clock))
	require.NoError(t, err)
	strategy, err := cache.NewStrategy(store, readmodels.NewRegistry(), cache.DefaultConfig(), cache.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = strategy.Close(ctx) })

	var builds atomic.Int32
	target := warming.Target{
		Name: "homepage_impact",
		Key:  "stats:homepage_impact:all",
		Build: func(context.Context) (readmodel.ReadModel, error) {
			builds.Add(1)
			return readmodels.NewStatsSnapshot("homepage_impact", map[string]any{"total_raised": 10.0},
				readmodel.WithClock(clock)), nil
		},
	}
	s, err := warming.NewScheduler(strategy, []warming.Target{target}, warming.DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, warming.Result{Built: 1}, s.WarmOnce(ctx))
	assert.Equal(t, warming.Result{Skipped: 1}, s.WarmOnce(ctx))
	assert.EqualValues(t, 1, builds.Load())

	_, ok := strategy.Get(ctx, target.Key)
	assert.True(t, ok)
}
