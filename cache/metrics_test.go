package cache

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-readmodel-cache/internal/cacheinfra"
	"github.com/goliatone/go-readmodel-cache/readmodel"
	"github.com/jonboulle/clockwork"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectCounters(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	out := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[m.Name] += dp.Value
			}
		}
	}
	return out
}

func TestStrategy_WithMeter(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	clock := clockwork.NewFakeClockAt(t0)
	store, err := cacheinfra.NewMemoryStore(cacheinfra.DefaultConfig(), cacheinfra.WithMemoryClock(clock))
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	registry := readmodel.NewRegistry()
	registry.Register("campaign", readmodel.GenericDecoder("campaign"))

	cfg := DefaultConfig()
	cfg.RefreshWorkers = 0
	s, err := NewStrategy(store, registry, cfg, WithClock(clock), WithMeter(provider.Meter("test")))
	if err != nil {
		t.Fatalf("strategy: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	s.Get(ctx, "find:1")
	s.Put(ctx, "find:1", readmodel.NewBase("campaign", "1", readmodel.Data{}, readmodel.WithClock(clock)), WithTTL(time.Hour))
	s.Get(ctx, "find:1")
	s.Get(ctx, "find:1")

	got := collectCounters(t, reader)
	tests := []struct {
		name string
		want int64
	}{
		{"readmodel.cache.hits", 2},
		{"readmodel.cache.misses", 1},
	}
	for _, tt := range tests {
		if got[tt.name] != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.name, tt.want, got[tt.name])
		}
	}
}

func TestStrategy_DefaultMeter(t *testing.T) {
	h := newHarness(t)
	if h.strategy.metrics != defaultMetrics {
		t.Error("expected strategy without a meter to use the global counters")
	}
}
