package cache

import (
	"log/slog"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/goliatone/go-readmodel-cache/readmodel"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
)

// Option configures a Strategy.
type Option func(*Strategy)

// WithLogger sets the strategy logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Strategy) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the clock used for staleness and entry timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Strategy) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithCodec sets the entry codec. JSON is the default.
func WithCodec(codec readmodel.Codec) Option {
	return func(s *Strategy) {
		if codec != nil {
			s.codec = codec
		}
	}
}

// WithMeter reports the strategy counters through meter instead of the
// global meter provider.
func WithMeter(meter metric.Meter) Option {
	return func(s *Strategy) {
		if meter != nil {
			s.meter = meter
		}
	}
}

// PutOption adjusts a single write.
type PutOption func(*putOptions)

type putOptions struct {
	ttl  time.Duration
	tags []string
}

// WithTTL overrides the entry TTL.
func WithTTL(ttl time.Duration) PutOption {
	return func(o *putOptions) {
		o.ttl = ttl
	}
}

// WithTags adds tags to the entry.
func WithTags(tags ...string) PutOption {
	return func(o *putOptions) {
		o.tags = append(o.tags, tags...)
	}
}

func collectPutOptions(opts []PutOption) putOptions {
	var o putOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// resolveTTL picks the call TTL, then the read model TTL, then the default.
func (o putOptions) resolveTTL(rm readmodel.ReadModel, fallback time.Duration) time.Duration {
	if o.ttl > 0 {
		return o.ttl
	}
	if rm != nil && rm.CacheTTL() > 0 {
		return rm.CacheTTL()
	}
	return fallback
}

// resolveTags merges the read model tags with the call tags, sorted.
func (o putOptions) resolveTags(rm readmodel.ReadModel) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	if rm != nil {
		set = rm.CacheTags()
	}
	set.Append(o.tags...)
	tags := set.ToSlice()
	sort.Strings(tags)
	return tags
}
