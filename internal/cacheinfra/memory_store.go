package cacheinfra

import (
	"context"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
	tags      []string
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process store backed by a sturdyc client. Expiry is
// checked against an injectable clock on read. It is not durable: entries
// are lost on restart and invisible to other processes.
//
// The tag index only lists keys under the tags of their latest write. Keys
// sturdyc evicts on its own are pruned from a tag once the tag holds more
// keys than the store capacity.
type MemoryStore struct {
	client   *sturdyc.Client[memoryEntry]
	clock    clockwork.Clock
	tags     *xsync.MapOf[string, mapset.Set[string]]
	capacity int
	indexMu  sync.Mutex
	addMu    sync.Mutex
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock sets the clock used for expiry checks.
func WithMemoryClock(clock clockwork.Clock) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryStore validates cfg and creates the sturdyc client.
func NewMemoryStore(cfg Config, opts ...MemoryOption) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[memoryEntry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.MaxTTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	s := &MemoryStore{
		client:   client,
		clock:    clockwork.NewRealClock(),
		tags:     xsync.NewMapOf[string, mapset.Set[string]](),
		capacity: cfg.Capacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *MemoryStore) entry(key string) (memoryEntry, bool) {
	e, ok := s.client.Get(key)
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(s.clock.Now()) {
		s.removeIf(key, func(cur memoryEntry) bool { return cur.expired(s.clock.Now()) })
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(ttl)
}

// Get returns a copy of the value stored under key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := s.entry(key)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Put stores value under key for ttl.
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.PutTagged(ctx, key, value, ttl, nil)
}

// PutTagged stores value under key and indexes it under tags.
func (s *MemoryStore) PutTagged(_ context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	s.set(key, value, ttl, tags)
	return nil
}

func (s *MemoryStore) set(key string, value []byte, ttl time.Duration, tags []string) {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	if prev, ok := s.client.Get(key); ok {
		s.unindex(key, prev.tags)
	}
	s.client.Set(key, memoryEntry{
		value:     stored,
		expiresAt: s.expiry(ttl),
		tags:      append([]string(nil), tags...),
	})

	for _, tag := range tags {
		keys, _ := s.tags.LoadOrCompute(tag, func() mapset.Set[string] {
			return mapset.NewThreadUnsafeSet[string]()
		})
		keys.Add(key)
		if keys.Cardinality() > s.capacity {
			s.prune(tag, keys)
		}
	}
}

// unindex drops key from tags. Callers hold indexMu.
func (s *MemoryStore) unindex(key string, tags []string) {
	for _, tag := range tags {
		keys, ok := s.tags.Load(tag)
		if !ok {
			continue
		}
		keys.Remove(key)
		if keys.Cardinality() == 0 {
			s.tags.Delete(tag)
		}
	}
}

// prune drops keys sturdyc no longer holds. Callers hold indexMu.
func (s *MemoryStore) prune(tag string, keys mapset.Set[string]) {
	for _, key := range keys.ToSlice() {
		if _, ok := s.client.Get(key); !ok {
			keys.Remove(key)
		}
	}
	if keys.Cardinality() == 0 {
		s.tags.Delete(tag)
	}
}

// Add stores value only when key is absent or expired.
func (s *MemoryStore) Add(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.addMu.Lock()
	defer s.addMu.Unlock()

	if _, ok := s.entry(key); ok {
		return false, nil
	}
	s.set(key, value, ttl, nil)
	return true, nil
}

// Forget removes key.
func (s *MemoryStore) Forget(_ context.Context, key string) error {
	s.removeIf(key, nil)
	return nil
}

// removeIf deletes key when match accepts its current entry. A nil match
// accepts any entry.
func (s *MemoryStore) removeIf(key string, match func(memoryEntry) bool) bool {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	e, ok := s.client.Get(key)
	if !ok || (match != nil && !match(e)) {
		return false
	}
	s.removeLocked(key, e)
	return true
}

func (s *MemoryStore) removeLocked(key string, e memoryEntry) {
	s.client.Delete(key)
	s.unindex(key, e.tags)
}

// FlushTags removes every key indexed under any of tags, along with its
// membership in other tags.
func (s *MemoryStore) FlushTags(_ context.Context, tags ...string) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	for _, tag := range tags {
		keys, ok := s.tags.LoadAndDelete(tag)
		if !ok {
			continue
		}
		for _, key := range keys.ToSlice() {
			if e, ok := s.client.Get(key); ok {
				s.removeLocked(key, e)
			}
		}
	}
	return nil
}

// ForgetPrefix removes every key starting with prefix.
func (s *MemoryStore) ForgetPrefix(_ context.Context, prefix string) (int, error) {
	removed := 0
	for _, key := range s.client.ScanKeys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if s.removeIf(key, nil) {
			removed++
		}
	}
	return removed, nil
}

// Flush removes everything.
func (s *MemoryStore) Flush(_ context.Context) error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	for _, key := range s.client.ScanKeys() {
		s.client.Delete(key)
	}
	s.tags.Clear()
	return nil
}

// TagSize reports how many keys are indexed under tag.
func (s *MemoryStore) TagSize(tag string) int {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	if keys, ok := s.tags.Load(tag); ok {
		return keys.Cardinality()
	}
	return 0
}

// Durable is always false for the in-process store.
func (s *MemoryStore) Durable() bool {
	return false
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	return s.client.Size()
}
