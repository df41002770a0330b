package repositorycache

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"sync/atomic"

	"github.com/goliatone/go-readmodel-cache/cache"
	"github.com/goliatone/go-readmodel-cache/internal/logctx"
	"github.com/goliatone/go-readmodel-cache/readmodel"
	"github.com/puzpuzpuz/xsync/v3"
)

// Operation names used as the second key segment.
const (
	OpFind    = "find"
	OpFindAll = "findAll"
	OpCount   = "count"
)

const aggregateID = "all"

// Filters narrows a lookup. Keys are serialized in sorted order so equal
// filter sets map to the same cache key.
type Filters map[string]any

// Builder produces authoritative read models on a cache miss.
type Builder[M readmodel.ReadModel] interface {
	// BuildReadModel returns false when id does not exist.
	BuildReadModel(ctx context.Context, id string, filters Filters) (M, bool, error)
	// BuildReadModels builds every id it can. Missing ids are absent from
	// the result.
	BuildReadModels(ctx context.Context, ids []string, filters Filters) (map[string]M, error)
	BuildAllReadModels(ctx context.Context, filters Filters, limit, offset int) ([]M, error)
	BuildCount(ctx context.Context, filters Filters) (int, error)
}

type pageParams struct {
	Filters Filters
	Limit   int
	Offset  int
}

// Repository is a cache-aside read model repository. Reads consult the
// strategy first and fall back to the builder; results are cached with the
// read model's own TTL and tags.
type Repository[M readmodel.ReadModel] struct {
	kind          readmodel.Kind
	builder       Builder[M]
	strategy      *cache.Strategy
	keys          cache.KeyBuilder
	defaultTags   []string
	allowVolatile bool
	logger        *slog.Logger
	enabled       atomic.Bool
	keyRegistry   *xsync.MapOf[string, struct{}]
}

// Option configures a Repository.
type Option func(*repositoryOptions)

type repositoryOptions struct {
	defaultTags   []string
	allowVolatile bool
	serializer    cache.KeySerializer
	prefix        string
	logger        *slog.Logger
}

// WithDefaultTags replaces the tags used by ClearCache when called without
// tags. The default is the kind itself, which every read model carries.
func WithDefaultTags(tags ...string) Option {
	return func(o *repositoryOptions) {
		o.defaultTags = append([]string(nil), tags...)
	}
}

// AllowVolatileStore keeps caching on when the store is not durable.
func AllowVolatileStore() Option {
	return func(o *repositoryOptions) {
		o.allowVolatile = true
	}
}

// WithKeySerializer sets the serializer for filter hashing.
func WithKeySerializer(s cache.KeySerializer) Option {
	return func(o *repositoryOptions) {
		if s != nil {
			o.serializer = s
		}
	}
}

// WithKeyPrefix overrides the key prefix derived from the kind.
func WithKeyPrefix(prefix string) Option {
	return func(o *repositoryOptions) {
		if prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithLogger sets the fallback logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *repositoryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a Repository for kind backed by builder and strategy.
func New[M readmodel.ReadModel](kind readmodel.Kind, builder Builder[M], strategy *cache.Strategy, opts ...Option) *Repository[M] {
	o := repositoryOptions{
		defaultTags: []string{string(kind)},
		serializer:  cache.NewDefaultKeySerializer(),
		prefix:      kindPrefix(string(kind)),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Repository[M]{
		kind:          kind,
		builder:       builder,
		strategy:      strategy,
		keys:          cache.NewKeyBuilder(o.prefix).WithSerializer(o.serializer),
		defaultTags:   o.defaultTags,
		allowVolatile: o.allowVolatile,
		logger:        o.logger,
		keyRegistry:   xsync.NewMapOf[string, struct{}](),
	}
	r.enabled.Store(true)
	return r
}

func (r *Repository[M]) log(ctx context.Context) *slog.Logger {
	return logctx.FromContextOr(ctx, r.logger).With("kind", string(r.kind))
}

// Kind returns the read model kind served by the repository.
func (r *Repository[M]) Kind() readmodel.Kind {
	return r.kind
}

// BuildCacheKey returns prefix:operation:identifier with a hash of extra
// appended when extra is non-empty.
func (r *Repository[M]) BuildCacheKey(operation, identifier string, extra any) string {
	return r.keys.Build(operation, identifier, extra)
}

// IsCachingEnabled reports whether reads go through the cache. Caching is
// forced off when the strategy is disabled or when the store is not durable
// and AllowVolatileStore was not given.
func (r *Repository[M]) IsCachingEnabled() bool {
	if !r.enabled.Load() || !r.strategy.Enabled() {
		return false
	}
	return r.allowVolatile || r.strategy.Durable()
}

// SetCachingEnabled toggles caching at runtime.
func (r *Repository[M]) SetCachingEnabled(enabled bool) {
	r.enabled.Store(enabled)
}

// Find returns the read model for id. Concurrent misses for the same id each
// run the builder.
func (r *Repository[M]) Find(ctx context.Context, id string, filters Filters) (M, bool, error) {
	var zero M
	key := r.BuildCacheKey(OpFind, id, filters)

	if m, ok := r.cached(ctx, key); ok {
		return m, true, nil
	}

	m, found, err := r.builder.BuildReadModel(ctx, id, filters)
	if err != nil {
		return zero, false, err
	}
	if !found || isNil(m) {
		return zero, false, nil
	}
	r.put(ctx, key, m)
	return m, true, nil
}

// FindMany looks up every id, builds all misses with one batch call and
// returns the results in input order. Ids that cannot be built are omitted.
func (r *Repository[M]) FindMany(ctx context.Context, ids []string, filters Filters) ([]M, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	found := make(map[string]M, len(ids))
	var misses []string
	for _, id := range ids {
		if _, seen := found[id]; seen || containsString(misses, id) {
			continue
		}
		if m, ok := r.cached(ctx, r.BuildCacheKey(OpFind, id, filters)); ok {
			found[id] = m
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		built, err := r.builder.BuildReadModels(ctx, misses, filters)
		if err != nil {
			return nil, err
		}
		for _, id := range misses {
			m, ok := built[id]
			if !ok || isNil(m) {
				continue
			}
			found[id] = m
			r.put(ctx, r.BuildCacheKey(OpFind, id, filters), m)
		}
	}

	out := make([]M, 0, len(found))
	for _, id := range ids {
		if m, ok := found[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// FindAll returns one page of read models cached as a single entry.
func (r *Repository[M]) FindAll(ctx context.Context, filters Filters, limit, offset int) ([]M, error) {
	key := r.BuildCacheKey(OpFindAll, aggregateID, pageParams{Filters: filters, Limit: limit, Offset: offset})

	if r.IsCachingEnabled() {
		if models, ok := r.strategy.GetList(ctx, key); ok {
			if typed, ok := typedList[M](models); ok {
				return typed, nil
			}
			r.log(ctx).WarnContext(ctx, "cached page has unexpected types, rebuilding", "key", key)
		}
	}

	models, err := r.builder.BuildAllReadModels(ctx, filters, limit, offset)
	if err != nil {
		return nil, err
	}

	if r.IsCachingEnabled() {
		erased := make([]readmodel.ReadModel, 0, len(models))
		for _, m := range models {
			erased = append(erased, m)
		}
		r.strategy.PutList(ctx, key, erased, cache.WithTags(r.writeTags(ctx)...))
		r.trackKey(key)
	}
	return models, nil
}

// Count returns the cached number of read models matching filters.
func (r *Repository[M]) Count(ctx context.Context, filters Filters) (int, error) {
	key := r.BuildCacheKey(OpCount, aggregateID, filters)

	if r.IsCachingEnabled() {
		var n int
		if r.strategy.GetValue(ctx, key, &n) {
			return n, nil
		}
	}

	n, err := r.builder.BuildCount(ctx, filters)
	if err != nil {
		return 0, err
	}

	if r.IsCachingEnabled() {
		r.strategy.PutValue(ctx, key, n, cache.WithTags(r.writeTags(ctx)...))
		r.trackKey(key)
	}
	return n, nil
}

// Refresh drops the cached entry for id together with every page and count,
// then loads id again.
func (r *Repository[M]) Refresh(ctx context.Context, id string) (M, bool, error) {
	r.strategy.Forget(ctx, r.BuildCacheKey(OpFind, id, nil))
	r.untrack(r.BuildCacheKey(OpFind, id, nil))
	r.invalidateAggregates(ctx)
	return r.Find(ctx, id, nil)
}

// RefreshMany is Refresh for several ids with a single batch build.
func (r *Repository[M]) RefreshMany(ctx context.Context, ids []string) ([]M, error) {
	for _, id := range ids {
		key := r.BuildCacheKey(OpFind, id, nil)
		r.strategy.Forget(ctx, key)
		r.untrack(key)
	}
	r.invalidateAggregates(ctx)
	return r.FindMany(ctx, ids, nil)
}

// ClearCache flushes tags, or the default tags when none are given. Stores
// without tag support are flushed entirely.
func (r *Repository[M]) ClearCache(ctx context.Context, tags ...string) {
	if len(tags) == 0 {
		tags = r.defaultTags
	}
	if !r.strategy.SupportsTags() {
		r.log(ctx).WarnContext(ctx, "cache backend has no tag support, clearing the whole cache", "tags", tags)
	}
	r.strategy.ForgetByTags(ctx, tags...)
	r.keyRegistry.Clear()
}

// ClearAllCache flushes the default tags.
func (r *Repository[M]) ClearAllCache(ctx context.Context) {
	r.ClearCache(ctx)
}

func (r *Repository[M]) cached(ctx context.Context, key string) (M, bool) {
	var zero M
	if !r.IsCachingEnabled() {
		return zero, false
	}

	rm, ok := r.strategy.Get(ctx, key)
	if !ok {
		return zero, false
	}
	m, ok := rm.(M)
	if !ok {
		r.log(ctx).WarnContext(ctx, "cached read model has unexpected type, rebuilding", "key", key, "cached_kind", rm.Kind())
		r.strategy.Forget(ctx, key)
		return zero, false
	}
	return m, true
}

func (r *Repository[M]) put(ctx context.Context, key string, m M) {
	if !r.IsCachingEnabled() || !m.Cacheable() {
		return
	}
	r.strategy.Put(ctx, key, m, cache.WithTags(r.writeTags(ctx)...))
	r.trackKey(key)
}

// writeTags returns the context tags plus the kind tag so aggregate entries
// are cleared with the rest of the kind.
func (r *Repository[M]) writeTags(ctx context.Context) []string {
	return dedupeStrings(append(cacheTagsFromContext(ctx), r.defaultTags...))
}

func (r *Repository[M]) invalidateAggregates(ctx context.Context) {
	for _, op := range []string{OpFindAll, OpCount} {
		r.invalidateByPrefix(ctx, r.keys.OperationPrefix(op))
	}
}

// invalidateByPrefix evicts prefix through the store when it can scan keys,
// otherwise through the keys this repository wrote.
func (r *Repository[M]) invalidateByPrefix(ctx context.Context, prefix string) {
	if cache.SupportsPrefix(r.strategy.Store()) {
		r.strategy.ForgetByPrefix(ctx, prefix)
		r.keyRegistry.Range(func(key string, _ struct{}) bool {
			if strings.HasPrefix(key, prefix) {
				r.keyRegistry.Delete(key)
			}
			return true
		})
		return
	}

	var keysToDelete []string
	r.keyRegistry.Range(func(key string, _ struct{}) bool {
		if strings.HasPrefix(key, prefix) {
			keysToDelete = append(keysToDelete, key)
		}
		return true
	})
	for _, key := range keysToDelete {
		r.strategy.Forget(ctx, key)
		r.keyRegistry.Delete(key)
	}
}

func (r *Repository[M]) trackKey(key string) {
	r.keyRegistry.Store(key, struct{}{})
}

func (r *Repository[M]) untrack(key string) {
	r.keyRegistry.Delete(key)
}

// TrackedKeys returns the number of keys written by this repository since
// the last clear.
func (r *Repository[M]) TrackedKeys() int {
	return r.keyRegistry.Size()
}

func typedList[M readmodel.ReadModel](models []readmodel.ReadModel) ([]M, bool) {
	out := make([]M, 0, len(models))
	for _, rm := range models {
		m, ok := rm.(M)
		if !ok {
			return nil, false
		}
		out = append(out, m)
	}
	return out, true
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
