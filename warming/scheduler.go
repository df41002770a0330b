// Package warming keeps frequently read entries populated. A Scheduler
// warms a fixed set of targets on an interval; warming only builds cold
// entries, and the strategy's stale refresh keeps warm ones current.
package warming

import (
	"context"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-readmodel-cache/cache"
	"github.com/goliatone/go-readmodel-cache/internal/logctx"
	"github.com/jonboulle/clockwork"
)

// Target is one cache entry to keep warm.
type Target struct {
	Name    string
	Key     string
	Build   cache.BuildFunc
	Options []cache.PutOption
}

// Warmer populates cold entries. *cache.Strategy implements it.
type Warmer interface {
	Warm(ctx context.Context, key string, build cache.BuildFunc, opts ...cache.PutOption) (bool, error)
}

// Config controls the scheduler.
type Config struct {
	// Interval between warming passes.
	Interval time.Duration `mapstructure:"interval"`

	// Targets restricts warming to the named targets. Empty warms all.
	Targets []string `mapstructure:"targets"`

	// Disabled turns Run into a no-op.
	Disabled bool `mapstructure:"disabled"`
}

func DefaultConfig() Config {
	return Config{Interval: 5 * time.Minute}
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Interval, validation.When(!c.Disabled, validation.Required, validation.Min(time.Second))),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid warming config")
	}
	return nil
}

// Result counts the outcome of a warming pass.
type Result struct {
	Built   int
	Skipped int
	Failed  int
}

// Scheduler warms its targets on an interval.
type Scheduler struct {
	warmer  Warmer
	targets []Target
	cfg     Config
	clock   clockwork.Clock
	logger  *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScheduler validates cfg and keeps the targets it selects.
func NewScheduler(warmer Warmer, targets []Target, cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		warmer:  warmer,
		targets: selectTargets(targets, cfg.Targets),
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func selectTargets(all []Target, names []string) []Target {
	if len(names) == 0 {
		return all
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	out := make([]Target, 0, len(names))
	for _, t := range all {
		if wanted[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

// Targets returns the selected targets.
func (s *Scheduler) Targets() []Target {
	return s.targets
}

// WarmOnce runs one pass over every target. Failures are logged and counted.
func (s *Scheduler) WarmOnce(ctx context.Context) Result {
	log := logctx.FromContextOr(ctx, s.logger)
	var res Result
	for _, t := range s.targets {
		if ctx.Err() != nil {
			break
		}
		built, err := s.warmer.Warm(ctx, t.Key, t.Build, t.Options...)
		switch {
		case err != nil:
			res.Failed++
			log.WarnContext(ctx, "cache warming failed", "target", t.Name, "key", t.Key, "error", err)
		case built:
			res.Built++
		default:
			res.Skipped++
		}
	}
	log.DebugContext(ctx, "cache warming pass done",
		"built", res.Built, "skipped", res.Skipped, "failed", res.Failed)
	return res
}

// Run warms immediately, then on every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.Disabled || len(s.targets) == 0 {
		return nil
	}
	s.logger.Info("cache warming started", "targets", len(s.targets), "interval", s.cfg.Interval)

	s.WarmOnce(ctx)

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("cache warming stopped")
			return nil
		case <-ticker.Chan():
			s.WarmOnce(ctx)
		}
	}
}
