package stats

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/goliatone/go-readmodel-cache/internal/logctx"
	"github.com/jonboulle/clockwork"
)

// calculator carries what every calculator needs to stamp its output.
type calculator struct {
	policy TTLPolicy
	clock  clockwork.Clock
	logger *slog.Logger
}

func newCalculator(policy TTLPolicy, clock clockwork.Clock, logger *slog.Logger) calculator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return calculator{policy: policy, clock: clock, logger: logger}
}

func (c calculator) stamp(t target, data Snapshot) Snapshot {
	now := c.clock.Now()
	data[KeyMeta] = map[string]any{
		"generated_at": now.Unix(),
		"expires_at":   now.Add(t.ttl).Unix(),
		"cache_key":    t.key(),
		"version":      strconv.FormatInt(now.Unix(), 10),
	}
	if _, ok := data[KeyFallback]; !ok {
		data[KeyFallback] = false
	}
	if _, ok := data[KeyError]; !ok {
		data[KeyError] = false
	}
	return data
}

// fallback stamps the zero valued snapshot that replaces a failed
// calculation.
func (c calculator) fallback(ctx context.Context, t target, err error, zero Snapshot) Snapshot {
	logctx.FromContextOr(ctx, c.logger).WarnContext(ctx, "stats calculation failed, serving fallback",
		"calculator", t.name, "key", t.key(), "error", err)
	zero[KeyFallback] = true
	zero[KeyError] = true
	return c.stamp(t, zero)
}
