package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

const (
	generationKey     = "cache_version"
	initialGeneration = "0"
)

// generation tracks the global cache version. Every data key is written
// under the current generation, so bumping it orphans all previous entries.
type generation struct {
	mu        sync.Mutex
	value     string
	checkedAt time.Time
}

func (s *Strategy) generationStoreKey() string {
	return s.cfg.Namespace + KeySeparator + generationKey
}

// currentGeneration returns the locally trusted generation, reloading it from
// the store once GenerationCheckInterval has elapsed.
func (s *Strategy) currentGeneration(ctx context.Context) string {
	now := s.clock.Now()

	s.gen.mu.Lock()
	if s.gen.value != "" && now.Sub(s.gen.checkedAt) < s.cfg.GenerationCheckInterval {
		v := s.gen.value
		s.gen.mu.Unlock()
		return v
	}
	s.gen.mu.Unlock()

	value := initialGeneration
	opCtx, cancel := s.opContext(ctx)
	raw, ok, err := s.store.Get(opCtx, s.generationStoreKey())
	cancel()
	switch {
	case err != nil:
		s.log(ctx).WarnContext(ctx, "cache generation read failed", "error", err)
		s.metrics.failure(ctx, "generation")
		s.gen.mu.Lock()
		defer s.gen.mu.Unlock()
		if s.gen.value != "" {
			return s.gen.value
		}
		return initialGeneration
	case ok && len(raw) > 0:
		value = string(raw)
	}

	s.gen.mu.Lock()
	s.gen.value = value
	s.gen.checkedAt = now
	s.gen.mu.Unlock()
	return value
}

// BumpCacheVersion writes a new global generation. Entries written under the
// previous generation become unreachable and age out through their TTL.
func (s *Strategy) BumpCacheVersion(ctx context.Context) (string, error) {
	token := strconv.FormatInt(s.clock.Now().UnixNano(), 36)

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.store.Put(opCtx, s.generationStoreKey(), []byte(token), 0); err != nil {
		return "", err
	}

	s.gen.mu.Lock()
	s.gen.value = token
	s.gen.checkedAt = s.clock.Now()
	s.gen.mu.Unlock()

	s.log(ctx).InfoContext(ctx, "cache generation bumped", "generation", token)
	return token, nil
}

// qualify maps a logical key to its physical key in the current generation.
func (s *Strategy) qualify(ctx context.Context, key string) string {
	return s.cfg.Namespace + KeySeparator + "v" + s.currentGeneration(ctx) + KeySeparator + key
}
