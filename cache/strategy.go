package cache

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-readmodel-cache/internal/logctx"
	"github.com/goliatone/go-readmodel-cache/readmodel"
	"github.com/jonboulle/clockwork"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

// BuildFunc produces a fresh read model from the source of truth. A nil read
// model with a nil error means there is nothing to cache.
type BuildFunc func(ctx context.Context) (readmodel.ReadModel, error)

// Strategy is the cache policy shared by repositories, calculators and the
// invalidation pipeline. Backend failures never leave the read paths: they
// are logged and treated as misses.
type Strategy struct {
	store    Store
	registry *readmodel.Registry
	cfg      Config
	codec    readmodel.Codec
	clock    clockwork.Clock
	logger   *slog.Logger
	meter    metric.Meter
	metrics  *metrics

	gen       generation
	flight    singleflight.Group
	refresher *refresher
}

// NewStrategy validates cfg and returns a strategy over store.
func NewStrategy(store Store, registry *readmodel.Registry, cfg Config, opts ...Option) (*Strategy, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Strategy{
		store:    store,
		registry: registry,
		cfg:      cfg,
		codec:    readmodel.JSONCodec{},
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.metrics = defaultMetrics
	if s.meter != nil {
		m, err := newMetrics(s.meter)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create cache counters")
		}
		s.metrics = m
	}

	if cfg.RefreshWorkers > 0 {
		s.refresher = newRefresher(s, cfg.RefreshWorkers, cfg.RefreshQueueSize)
	}
	return s, nil
}

// Config returns the strategy configuration.
func (s *Strategy) Config() Config { return s.cfg }

// Store returns the backend.
func (s *Strategy) Store() Store { return s.store }

// Registry returns the decode registry.
func (s *Strategy) Registry() *readmodel.Registry { return s.registry }

// Clock returns the strategy clock.
func (s *Strategy) Clock() clockwork.Clock { return s.clock }

// Enabled reports whether caching is turned on.
func (s *Strategy) Enabled() bool { return !s.cfg.Disabled }

// Durable reports whether the backend is shared and survives restarts.
func (s *Strategy) Durable() bool { return s.store.Durable() }

// SupportsTags reports whether the backend can flush by tag.
func (s *Strategy) SupportsTags() bool { return SupportsTags(s.store) }

func (s *Strategy) log(ctx context.Context) *slog.Logger {
	return logctx.FromContextOr(ctx, s.logger)
}

func (s *Strategy) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

// Remember returns the cached read model for key or builds and caches it.
// A hit older than StaleRatio of its TTL is served as is while a refresh is
// scheduled in the background. Builder errors are returned uncached.
func (s *Strategy) Remember(ctx context.Context, key string, build BuildFunc, opts ...PutOption) (readmodel.ReadModel, error) {
	if s.cfg.Disabled {
		return s.build(ctx, "remember", build)
	}

	if rm, ok := s.Get(ctx, key); ok {
		if s.isStale(rm, opts) {
			s.scheduleRefresh(ctx, key, build, opts)
		}
		return rm, nil
	}

	rm, err := s.build(ctx, "remember", build)
	if err != nil {
		return nil, err
	}
	if isNilModel(rm) {
		return rm, nil
	}
	s.Put(ctx, key, rm, opts...)
	return rm, nil
}

func (s *Strategy) isStale(rm readmodel.ReadModel, opts []PutOption) bool {
	ttl := collectPutOptions(opts).resolveTTL(rm, s.cfg.DefaultTTL)
	age, ok := readmodel.Age(rm, s.clock.Now())
	if !ok {
		return false
	}
	return float64(age) > s.cfg.StaleRatio*float64(ttl)
}

func (s *Strategy) scheduleRefresh(ctx context.Context, key string, build BuildFunc, opts []PutOption) {
	if s.refresher == nil {
		if _, err := s.Refresh(ctx, key, build, opts...); err != nil {
			s.log(ctx).WarnContext(ctx, "inline refresh failed", "key", key, "error", err)
		}
		return
	}
	if s.refresher.schedule(ctx, key, build, opts) {
		s.log(ctx).DebugContext(ctx, "stale entry, refresh scheduled", "key", key)
	}
}

// PendingRefreshes reports background refreshes queued or running.
func (s *Strategy) PendingRefreshes() int {
	if s.refresher == nil {
		return 0
	}
	return s.refresher.pending()
}

// Get returns the cached read model for key. Backend and decode failures
// are reported as a miss.
func (s *Strategy) Get(ctx context.Context, key string) (readmodel.ReadModel, bool) {
	if s.cfg.Disabled {
		return nil, false
	}

	raw, ok := s.fetch(ctx, key)
	if !ok {
		s.metrics.miss(ctx)
		s.log(ctx).DebugContext(ctx, "cache miss", "key", key)
		return nil, false
	}

	rm, err := s.decode(raw)
	if err != nil {
		s.metrics.decodeFailure(ctx)
		s.log(ctx).WarnContext(ctx, "cached entry could not be decoded, rebuilding", "key", key, "error", err)
		s.Forget(ctx, key)
		return nil, false
	}

	s.metrics.hit(ctx)
	return rm, true
}

func (s *Strategy) decode(raw []byte) (readmodel.ReadModel, error) {
	entry, err := s.codec.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	return s.registry.Decode(entry)
}

// Put caches rm under key. Non cacheable read models are ignored.
func (s *Strategy) Put(ctx context.Context, key string, rm readmodel.ReadModel, opts ...PutOption) {
	if s.cfg.Disabled || isNilModel(rm) || !rm.Cacheable() {
		return
	}

	o := collectPutOptions(opts)
	raw, err := s.codec.Marshal(readmodel.Serialize(rm, s.clock.Now()))
	if err != nil {
		s.metrics.failure(ctx, "encode")
		s.log(ctx).WarnContext(ctx, "read model could not be encoded", "key", key, "error", err)
		return
	}

	s.write(ctx, key, raw, o.resolveTTL(rm, s.cfg.DefaultTTL), o.resolveTags(rm))
}

// Forget drops key.
func (s *Strategy) Forget(ctx context.Context, key string) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.store.Forget(opCtx, s.qualify(ctx, key)); err != nil {
		s.metrics.failure(ctx, "forget")
		s.log(ctx).WarnContext(ctx, "cache forget failed", "key", key, "error", err)
	}
}

// ForgetByTags evicts every entry carrying any of tags, logging failures.
func (s *Strategy) ForgetByTags(ctx context.Context, tags ...string) {
	if err := s.FlushTags(ctx, tags...); err != nil {
		s.log(ctx).WarnContext(ctx, "cache tag flush failed", "tags", tags, "error", err)
	}
}

// FlushTags evicts every entry carrying any of tags and returns backend
// errors so callers with a retry policy can act on them. Backends without
// tag support are flushed entirely.
func (s *Strategy) FlushTags(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	ts, ok := s.store.(TagStore)
	if !ok {
		s.log(ctx).WarnContext(ctx, "cache backend has no tag support, flushing entire store", "tags", tags)
		return s.store.Flush(opCtx)
	}
	if err := ts.FlushTags(opCtx, tags...); err != nil {
		s.metrics.failure(ctx, "flush_tags")
		return err
	}
	return nil
}

// ForgetByPrefix evicts every key starting with prefix, logging failures.
func (s *Strategy) ForgetByPrefix(ctx context.Context, prefix string) {
	if _, err := s.FlushPrefix(ctx, prefix); err != nil {
		s.log(ctx).WarnContext(ctx, "cache prefix eviction failed", "prefix", prefix, "error", err)
	}
}

// FlushPrefix evicts every key of the current generation starting with
// prefix. Backends that cannot scan keys are flushed entirely and report -1.
func (s *Strategy) FlushPrefix(ctx context.Context, prefix string) (int, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	ps, ok := s.store.(PrefixStore)
	if !ok {
		s.log(ctx).WarnContext(ctx, "cache backend cannot scan keys, flushing entire store", "prefix", prefix)
		return -1, s.store.Flush(opCtx)
	}

	n, err := ps.ForgetPrefix(opCtx, s.qualify(ctx, prefix))
	if err != nil {
		s.metrics.failure(ctx, "forget_prefix")
		return n, err
	}
	return n, nil
}

// Flush clears the whole backend.
func (s *Strategy) Flush(ctx context.Context) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	return s.store.Flush(opCtx)
}

type valueEnvelope struct {
	CachedAt int64              `msgpack:"cached_at"`
	Value    msgpack.RawMessage `msgpack:"value"`
}

// PutValue caches an arbitrary msgpack encodable value.
func (s *Strategy) PutValue(ctx context.Context, key string, v any, opts ...PutOption) {
	if s.cfg.Disabled {
		return
	}

	o := collectPutOptions(opts)
	ttl := o.resolveTTL(nil, s.cfg.DefaultTTL)
	tags := o.resolveTags(nil)

	if err := s.putValue(ctx, key, v, ttl, tags); err != nil {
		s.metrics.failure(ctx, "encode")
		s.log(ctx).WarnContext(ctx, "value could not be encoded", "key", key, "error", err)
	}
}

func (s *Strategy) putValue(ctx context.Context, key string, v any, ttl time.Duration, tags []string) error {
	value, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	raw, err := msgpack.Marshal(valueEnvelope{CachedAt: s.clock.Now().Unix(), Value: value})
	if err != nil {
		return err
	}
	s.write(ctx, key, raw, ttl, tags)
	return nil
}

// GetValue decodes the value cached under key into dest.
func (s *Strategy) GetValue(ctx context.Context, key string, dest any) bool {
	if s.cfg.Disabled {
		return false
	}

	raw, ok := s.fetch(ctx, key)
	if !ok {
		s.metrics.miss(ctx)
		return false
	}

	var env valueEnvelope
	if err := msgpack.Unmarshal(raw, &env); err == nil {
		err = msgpack.Unmarshal(env.Value, dest)
		if err == nil {
			s.metrics.hit(ctx)
			return true
		}
	}

	s.metrics.decodeFailure(ctx)
	s.log(ctx).WarnContext(ctx, "cached value could not be decoded", "key", key)
	s.Forget(ctx, key)
	return false
}

// PutList caches a page of read models as a single entry tagged with the
// union of their tags.
func (s *Strategy) PutList(ctx context.Context, key string, models []readmodel.ReadModel, opts ...PutOption) {
	if s.cfg.Disabled {
		return
	}

	o := collectPutOptions(opts)
	now := s.clock.Now()
	entries := make([]readmodel.Entry, 0, len(models))
	tagSet := mapset.NewThreadUnsafeSet[string](o.tags...)
	for _, rm := range models {
		if isNilModel(rm) {
			continue
		}
		entries = append(entries, readmodel.Serialize(rm, now))
		tagSet.Append(rm.CacheTags().ToSlice()...)
	}
	tags := tagSet.ToSlice()
	sort.Strings(tags)

	if err := s.putValue(ctx, key, entries, o.resolveTTL(nil, s.cfg.DefaultTTL), tags); err != nil {
		s.metrics.failure(ctx, "encode")
		s.log(ctx).WarnContext(ctx, "list could not be encoded", "key", key, "error", err)
	}
}

// GetList returns the page of read models cached under key. An entry that
// fails to decode invalidates the whole page.
func (s *Strategy) GetList(ctx context.Context, key string) ([]readmodel.ReadModel, bool) {
	var entries []readmodel.Entry
	if !s.GetValue(ctx, key, &entries) {
		return nil, false
	}

	out := make([]readmodel.ReadModel, 0, len(entries))
	for _, entry := range entries {
		rm, err := s.registry.Decode(entry)
		if err != nil {
			s.metrics.decodeFailure(ctx)
			s.log(ctx).WarnContext(ctx, "cached list entry could not be decoded, rebuilding", "key", key, "error", err)
			s.Forget(ctx, key)
			return nil, false
		}
		out = append(out, rm)
	}
	return out, true
}

// Warm populates key when it is cold. Concurrent warmers and refreshers of
// the same key collapse into a single build, here through singleflight and
// across processes through a lock in the store. It reports whether the entry
// was built, either by this call or by a concurrent in-process build it
// joined. Callers that find the entry warm, or lose the store lock to another
// process, get false.
func (s *Strategy) Warm(ctx context.Context, key string, build BuildFunc, opts ...PutOption) (bool, error) {
	if s.cfg.Disabled {
		return false, nil
	}
	if _, ok := s.fetch(ctx, key); ok {
		s.log(ctx).DebugContext(ctx, "cache already warm", "key", key)
		return false, nil
	}
	return s.rebuild(ctx, "warm", key, build, opts)
}

// Refresh rebuilds key unconditionally under the same lock Warm uses.
func (s *Strategy) Refresh(ctx context.Context, key string, build BuildFunc, opts ...PutOption) (bool, error) {
	if s.cfg.Disabled {
		return false, nil
	}
	return s.rebuild(ctx, "refresh", key, build, opts)
}

func (s *Strategy) lockKey(key string) string {
	return s.cfg.Namespace + KeySeparator + LockPrefix + KeySeparator + key
}

func (s *Strategy) rebuild(ctx context.Context, op, key string, build BuildFunc, opts []PutOption) (bool, error) {
	v, err, _ := s.flight.Do(key, func() (any, error) {
		return s.rebuildLocked(ctx, op, key, build, opts)
	})
	if err != nil {
		return false, err
	}
	built, _ := v.(bool)
	return built, nil
}

func (s *Strategy) rebuildLocked(ctx context.Context, op, key string, build BuildFunc, opts []PutOption) (bool, error) {
	lock := NewLock(s.store, s.lockKey(key), s.cfg.LockTTL)

	acquireCtx, cancel := s.opContext(ctx)
	err := lock.Acquire(acquireCtx)
	cancel()
	switch {
	case errors.Is(err, ErrLockNotAcquired):
		s.metrics.contention(ctx)
		s.log(ctx).InfoContext(ctx, "rebuild already in progress elsewhere, skipping", "key", key, "operation", op)
		return false, nil
	case err != nil:
		s.metrics.failure(ctx, "lock")
		s.log(ctx).WarnContext(ctx, "rebuild lock unavailable, skipping", "key", key, "operation", op, "error", err)
		return false, nil
	}

	defer func() {
		releaseCtx, cancel := s.opContext(context.WithoutCancel(ctx))
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			s.metrics.failure(ctx, "unlock")
			s.log(ctx).WarnContext(ctx, "rebuild lock release failed", "key", key, "error", err)
		}
	}()

	if op == "warm" {
		// another process may have finished warming while we waited
		if _, ok := s.fetch(ctx, key); ok {
			return false, nil
		}
	}

	rm, err := s.build(ctx, op, build)
	if err != nil {
		return false, err
	}
	if isNilModel(rm) {
		return false, nil
	}
	s.Put(ctx, key, rm, opts...)
	return true, nil
}

func (s *Strategy) build(ctx context.Context, op string, build BuildFunc) (readmodel.ReadModel, error) {
	s.metrics.build(ctx, op)
	return build(ctx)
}

// Close stops the background refresher and waits for queued refreshes.
func (s *Strategy) Close(ctx context.Context) error {
	if s.refresher == nil {
		return nil
	}
	return s.refresher.close(ctx)
}

func (s *Strategy) fetch(ctx context.Context, key string) ([]byte, bool) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	raw, ok, err := s.store.Get(opCtx, s.qualify(ctx, key))
	if err != nil {
		s.metrics.failure(ctx, "get")
		s.log(ctx).WarnContext(ctx, "cache read failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return raw, ok
}

func (s *Strategy) write(ctx context.Context, key string, raw []byte, ttl time.Duration, tags []string) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	physical := s.qualify(ctx, key)

	var err error
	if ts, ok := s.store.(TagStore); ok && len(tags) > 0 {
		err = ts.PutTagged(opCtx, physical, raw, ttl, tags)
	} else {
		err = s.store.Put(opCtx, physical, raw, ttl)
	}
	if err != nil {
		s.metrics.failure(ctx, "put")
		s.log(ctx).WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

func isNilModel(rm readmodel.ReadModel) bool {
	if rm == nil {
		return true
	}
	v := reflect.ValueOf(rm)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}
