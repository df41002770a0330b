package cache

import (
	"context"
	"time"
)

// Store is the backend contract the strategy relies on. A ttl of zero or
// less means the entry never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Add stores value only when key is absent. It reports whether the
	// value was written and must be atomic across processes sharing the store.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
	Flush(ctx context.Context) error
	// Durable reports whether entries survive the process and are shared
	// with other processes.
	Durable() bool
}

// TagStore is implemented by backends that can evict entries by tag.
type TagStore interface {
	Store
	PutTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error
	FlushTags(ctx context.Context, tags ...string) error
}

// PrefixStore is implemented by backends that can scan keys by prefix.
type PrefixStore interface {
	ForgetPrefix(ctx context.Context, prefix string) (int, error)
}

// SupportsTags reports whether s can flush by tag.
func SupportsTags(s Store) bool {
	_, ok := s.(TagStore)
	return ok
}

// SupportsPrefix reports whether s can evict by key prefix.
func SupportsPrefix(s Store) bool {
	_, ok := s.(PrefixStore)
	return ok
}
