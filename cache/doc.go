// Package cache provides the read model cache strategy and key construction.
//
// # Overview
//
// The package exports a Strategy and the backend contracts it depends on:
//
//   - Strategy: get-or-build, stale-while-revalidate, warm and refresh with single-flight
//   - Store: the minimal backend (get, put, atomic add, forget, flush)
//   - TagStore and PrefixStore: optional capabilities for tag and prefix eviction
//   - KeyBuilder: stable repository keys from an operation, an identifier and extra params
//
// The cache is an optimization, never a dependency. Read paths swallow backend
// errors, log them and continue as a miss. Every backend call runs with
// Config.OperationTimeout so a slow store is never slower than a rebuild.
//
// # Basic Usage
//
//	strategy, err := cache.NewStrategy(store, registry, cache.DefaultConfig(),
//		cache.WithLogger(logger),
//	)
//
//	rm, err := strategy.Remember(ctx, "campaign:7", func(ctx context.Context) (readmodel.ReadModel, error) {
//		return builder.Campaign(ctx, "7")
//	}, cache.WithTags("campaigns"))
//
// The typed helpers avoid the type assertion:
//
//	campaign, err := cache.RememberAs(ctx, strategy, key, buildCampaign)
//
// # Staleness
//
// The age of a hit is derived from the read model version, which is its
// construction timestamp. Once the age passes StaleRatio of the TTL the hit is
// returned immediately and a refresh is queued on a bounded worker pool. A key
// is queued at most once; when the queue is full the refresh is dropped and
// the entry simply expires through its TTL.
//
// # Single-flight
//
// Warm and Refresh share one lock per key, "<namespace>:rebuild_lock:<key>",
// taken with the store's atomic Add and released in a defer. The lock expires
// after LockTTL so a crashed holder blocks rebuilds of that key for at most
// that window. Inside a process, calls for the same key are also collapsed
// with singleflight before they reach the store.
//
// # Generations
//
// Physical keys are "<namespace>:v<generation>:<key>". BumpCacheVersion writes
// a new generation, which makes every previous entry unreachable at once.
// Processes pick up a bump within GenerationCheckInterval.
//
// # Key Serialization
//
// KeyBuilder produces "prefix:operation:identifier" and appends a hash of the
// extra parameters only when they are non-empty. The default serializer walks
// values with reflection:
//
//   - Maps: sorted key-value pairs for deterministic output
//   - Structs: exported fields with name:value pairs
//   - Strings: quoted, so "1" and 1 differ
//   - Function pointers: %p, stable only within a process
//
// Function values therefore make poor filters for a shared backend. Pass
// plain data, or provide a custom KeySerializer.
package cache
