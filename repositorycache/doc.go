// Package repositorycache provides a generic cache-aside repository for read
// models.
//
// # Overview
//
// A Repository[M] pairs a Builder[M], which produces read models from the
// authoritative store, with a cache.Strategy. Reads check the cache first and
// fall back to the builder; results are cached with the read model's own TTL
// and tags.
//
// # Basic Usage
//
//	repo := repositorycache.New[readmodels.Campaign](readmodels.KindCampaign, builder, strategy)
//
//	campaign, ok, err := repo.Find(ctx, "42", nil)
//	page, err := repo.FindAll(ctx, repositorycache.Filters{"status": "active"}, 20, 0)
//	total, err := repo.Count(ctx, nil)
//
// # Cache Keys
//
// Keys have the form
//
//	prefix:operation:identifier[:hash]
//
// The prefix is the kind in snake_case. The hash of the filters is only
// appended when filters are non-empty. Filters are serialized with sorted map
// keys, so equal filter sets always share an entry.
//
// # Invalidation
//
// Refresh drops one find entry and every findAll and count entry, then loads
// the id again. Aggregate entries are evicted by key prefix when the store can
// scan keys, otherwise through the keys this repository has written.
//
// ClearCache flushes by tag. Every entry a repository writes carries its
// kind tag, plus any tags attached to the context with WithCacheTags:
//
//	ctx = repositorycache.WithCacheTags(ctx, "featured")
//	repo.FindMany(ctx, ids, nil)
//	// later
//	repo.ClearCache(ctx, "featured")
//
// When the store has no tag support the whole store is flushed and a warning
// is logged.
//
// # Enabling Caching
//
// Caching is off when the strategy is disabled, when SetCachingEnabled(false)
// was called, or when the store is not durable. An in-process store is
// treated as a development signal; pass AllowVolatileStore to cache anyway.
//
// # Error Handling
//
// Builder errors are returned unchanged and nothing is cached. Cache backend
// and decode failures are logged and served as misses.
package repositorycache
