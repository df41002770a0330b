package cache

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// Config controls the cache strategy.
type Config struct {
	// Namespace prefixes every key the strategy writes.
	Namespace string `mapstructure:"namespace"`

	// DefaultTTL applies when neither the call nor the read model sets one.
	DefaultTTL time.Duration `mapstructure:"default_ttl"`

	// StaleRatio is the fraction of the TTL after which a hit schedules a
	// background refresh. Must be in (0, 1].
	StaleRatio float64 `mapstructure:"stale_ratio"`

	// LockTTL bounds how long a crashed rebuild blocks other rebuilders.
	LockTTL time.Duration `mapstructure:"lock_ttl"`

	// OperationTimeout caps every single backend call.
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`

	// RefreshWorkers is the size of the background refresh pool. Zero
	// refreshes stale entries inline before returning.
	RefreshWorkers int `mapstructure:"refresh_workers"`

	// RefreshQueueSize bounds pending background refreshes. Requests beyond
	// it are dropped.
	RefreshQueueSize int `mapstructure:"refresh_queue_size"`

	// GenerationCheckInterval is how long the global cache generation is
	// trusted locally before it is read from the store again.
	GenerationCheckInterval time.Duration `mapstructure:"generation_check_interval"`

	// Disabled turns every read into a build and every write into a no-op.
	Disabled bool `mapstructure:"disabled"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Namespace:               "readmodel",
		DefaultTTL:              time.Hour,
		StaleRatio:              0.8,
		LockTTL:                 300 * time.Second,
		OperationTimeout:        500 * time.Millisecond,
		RefreshWorkers:          4,
		RefreshQueueSize:        256,
		GenerationCheckInterval: time.Second,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Namespace, validation.Required),
		validation.Field(&c.DefaultTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.StaleRatio, validation.Required, validation.Min(0.0).Exclusive(), validation.Max(1.0)),
		validation.Field(&c.LockTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.OperationTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.RefreshWorkers, validation.Min(0)),
		validation.Field(&c.RefreshQueueSize, validation.When(c.RefreshWorkers > 0, validation.Required, validation.Min(1))),
		validation.Field(&c.GenerationCheckInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid cache config")
	}
	return nil
}
