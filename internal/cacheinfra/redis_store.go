package cacheinfra

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisTagPrefix     = "tag:"
	redisKeyTagsPrefix = "keytags:"
	redisScanBatch     = 500
	redisTxAttempts    = 3
)

// DefaultRedisPrefix namespaces keys when no prefix is configured.
const DefaultRedisPrefix = "readmodel:"

// RedisStore is a shared, durable store on top of go-redis. Every tag is a
// Redis set holding the keys written with it, and every tagged key has a
// companion set listing its current tags. A tag flush only evicts keys whose
// companion set still lists the tag, so re-tagged keys survive. Tag sets
// expire no earlier than their longest lived member.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix namespaces every key and tag set. An empty prefix keeps
// DefaultRedisPrefix, so Flush never reaches keys outside the namespace.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedisStore wraps client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prefix returns the key namespace.
func (s *RedisStore) Prefix() string {
	return s.prefix
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

func (s *RedisStore) tagKey(tag string) string {
	return s.prefix + redisTagPrefix + tag
}

func (s *RedisStore) keyTagsKey(full string) string {
	return s.prefix + redisKeyTagsPrefix + strings.TrimPrefix(full, s.prefix)
}

func redisTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.PutTagged(ctx, key, value, ttl, nil)
}

// PutTagged writes the value and replaces its tag memberships in one
// transaction. Tags the key no longer carries lose it.
func (s *RedisStore) PutTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	full := s.key(key)
	tagsKey := s.keyTagsKey(full)

	write := func(tx *redis.Tx) error {
		previous, err := tx.SMembers(ctx, tagsKey).Result()
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, tag := range previous {
				if !slices.Contains(tags, tag) {
					pipe.SRem(ctx, s.tagKey(tag), full)
				}
			}
			pipe.Set(ctx, full, value, redisTTL(ttl))
			pipe.Del(ctx, tagsKey)
			if len(tags) == 0 {
				return nil
			}

			members := make([]any, 0, len(tags))
			for _, tag := range tags {
				members = append(members, tag)
			}
			pipe.SAdd(ctx, tagsKey, members...)
			if ttl > 0 {
				pipe.Expire(ctx, tagsKey, ttl)
			}
			for _, tag := range tags {
				tagKey := s.tagKey(tag)
				pipe.SAdd(ctx, tagKey, full)
				if ttl > 0 {
					pipe.ExpireNX(ctx, tagKey, ttl)
					pipe.ExpireGT(ctx, tagKey, ttl)
				}
			}
			return nil
		})
		return err
	}

	var err error
	for range redisTxAttempts {
		err = s.client.Watch(ctx, write, tagsKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (s *RedisStore) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(key), value, redisTTL(ttl)).Result()
}

// Forget deletes key and drops it from its tag sets.
func (s *RedisStore) Forget(ctx context.Context, key string) error {
	full := s.key(key)
	tags, err := s.client.SMembers(ctx, s.keyTagsKey(full)).Result()
	if err != nil {
		return err
	}
	return s.evict(ctx, full, tags, "")
}

// evict deletes full and its companion set, and drops it from every tag in
// tags except skip.
func (s *RedisStore) evict(ctx context.Context, full string, tags []string, skip string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, full, s.keyTagsKey(full))
		for _, tag := range tags {
			if tag != skip {
				pipe.SRem(ctx, s.tagKey(tag), full)
			}
		}
		return nil
	})
	return err
}

// FlushTags deletes every key still carrying one of tags, then the tag sets.
// Members that were re-tagged since they joined a set are left alone.
func (s *RedisStore) FlushTags(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		tagKey := s.tagKey(tag)
		members, err := s.client.SMembers(ctx, tagKey).Result()
		if err != nil {
			return err
		}
		for _, full := range members {
			current, err := s.client.SMembers(ctx, s.keyTagsKey(full)).Result()
			if err != nil {
				return err
			}
			if !slices.Contains(current, tag) {
				continue
			}
			if err := s.evict(ctx, full, current, tag); err != nil {
				return err
			}
		}
		if err := s.client.Del(ctx, tagKey).Err(); err != nil {
			return err
		}
	}
	return nil
}

// ForgetPrefix scans and deletes every key starting with prefix.
func (s *RedisStore) ForgetPrefix(ctx context.Context, prefix string) (int, error) {
	return s.deleteMatching(ctx, s.key(prefix)+"*")
}

func (s *RedisStore) deleteMatching(ctx context.Context, pattern string) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, pattern, redisScanBatch).Iterator()
	batch := make([]string, 0, redisScanBatch)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == redisScanBatch {
			n, err := s.client.Del(ctx, batch...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	if len(batch) > 0 {
		n, err := s.client.Del(ctx, batch...).Result()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	return removed, nil
}

// Flush removes every key in the store namespace.
func (s *RedisStore) Flush(ctx context.Context) error {
	_, err := s.deleteMatching(ctx, s.prefix+"*")
	return err
}

func (s *RedisStore) Durable() bool {
	return true
}
