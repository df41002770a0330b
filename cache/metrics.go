package cache

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/goliatone/go-readmodel-cache/cache"

// metrics holds the strategy counters.
type metrics struct {
	hits             metric.Int64Counter
	misses           metric.Int64Counter
	builds           metric.Int64Counter
	errors           metric.Int64Counter
	lockContention   metric.Int64Counter
	refreshesDropped metric.Int64Counter
	decodeFailures   metric.Int64Counter
}

// defaultMetrics report through the global meter provider.
var defaultMetrics *metrics

func init() {
	var err error
	defaultMetrics, err = newMetrics(otel.Meter(meterName))
	if err != nil {
		log.Fatalf("failed to create cache counters: %v", err)
	}
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	if m.hits, err = meter.Int64Counter(
		"readmodel.cache.hits",
		metric.WithDescription("Number of cache lookups served from the store"),
	); err != nil {
		return nil, err
	}
	if m.misses, err = meter.Int64Counter(
		"readmodel.cache.misses",
		metric.WithDescription("Number of cache lookups that fell through to a build"),
	); err != nil {
		return nil, err
	}
	if m.builds, err = meter.Int64Counter(
		"readmodel.cache.builds",
		metric.WithDescription("Number of builder invocations"),
	); err != nil {
		return nil, err
	}
	if m.errors, err = meter.Int64Counter(
		"readmodel.cache.errors",
		metric.WithDescription("Number of swallowed backend errors"),
	); err != nil {
		return nil, err
	}
	if m.lockContention, err = meter.Int64Counter(
		"readmodel.cache.lock_contention",
		metric.WithDescription("Number of rebuilds skipped because another worker held the lock"),
	); err != nil {
		return nil, err
	}
	if m.refreshesDropped, err = meter.Int64Counter(
		"readmodel.cache.refreshes_dropped",
		metric.WithDescription("Number of background refreshes dropped because the queue was full"),
	); err != nil {
		return nil, err
	}
	if m.decodeFailures, err = meter.Int64Counter(
		"readmodel.cache.decode_failures",
		metric.WithDescription("Number of cached entries that could not be decoded"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) hit(ctx context.Context) {
	m.hits.Add(ctx, 1)
}

func (m *metrics) miss(ctx context.Context) {
	m.misses.Add(ctx, 1)
}

func (m *metrics) build(ctx context.Context, op string) {
	m.builds.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

func (m *metrics) failure(ctx context.Context, op string) {
	m.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

func (m *metrics) contention(ctx context.Context) {
	m.lockContention.Add(ctx, 1)
}

func (m *metrics) refreshDropped(ctx context.Context) {
	m.refreshesDropped.Add(ctx, 1)
}

func (m *metrics) decodeFailure(ctx context.Context) {
	m.decodeFailures.Add(ctx, 1)
}
