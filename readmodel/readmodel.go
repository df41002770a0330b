package readmodel

import (
	"strconv"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jonboulle/clockwork"
)

// Field names reserved in the serialized data map.
const (
	FieldID      = "id"
	FieldVersion = "version"
)

// DefaultTTL is used when a read model does not declare its own TTL.
const DefaultTTL = time.Hour

// Kind discriminates read model types in the cache wire format.
type Kind string

// Data is a denormalized field snapshot. Encoders emit keys in lexical order.
type Data map[string]any

// Clone returns a shallow copy of d.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ReadModel is an immutable, versioned, cache-taggable projection of domain state.
type ReadModel interface {
	ID() string
	Kind() Kind
	// CacheKey is deterministic given (kind, id, version).
	CacheKey() string
	// CacheTags must be a superset of every tag an invalidation that should
	// evict this read model will flush.
	CacheTags() mapset.Set[string]
	CacheTTL() time.Duration
	Cacheable() bool
	// ToMap is a pure projection sufficient to rebuild the read model through
	// its Registry decoder.
	ToMap() Data
	Version() string
}

type options struct {
	ttl       time.Duration
	tags      []string
	cacheable bool
	version   string
	clock     clockwork.Clock
}

// Option configures a Base at construction.
type Option func(*options)

// WithTTL sets the per-instance cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		o.ttl = ttl
	}
}

// WithTags adds cache tags on top of the kind defaults.
func WithTags(tags ...string) Option {
	return func(o *options) {
		o.tags = append(o.tags, tags...)
	}
}

// NotCacheable marks the instance as opting out of caching.
func NotCacheable() Option {
	return func(o *options) {
		o.cacheable = false
	}
}

// WithVersion restores a version token. Only decoders should use it.
func WithVersion(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

// WithClock sets the clock used to stamp the version.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Base implements ReadModel and is meant to be embedded by concrete read models.
type Base struct {
	kind      Kind
	id        string
	data      Data
	version   string
	ttl       time.Duration
	tags      mapset.Set[string]
	cacheable bool
}

// NewBase builds a Base. The version is stamped once here and never changes.
func NewBase(kind Kind, id string, data Data, opts ...Option) Base {
	o := options{
		ttl:       DefaultTTL,
		cacheable: true,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	version := o.version
	if version == "" {
		version = strconv.FormatInt(o.clock.Now().Unix(), 10)
	}

	fields := make(Data, len(data))
	for k, v := range data {
		if k == FieldID || k == FieldVersion {
			continue
		}
		fields[k] = v
	}

	tags := mapset.NewThreadUnsafeSet[string](string(kind), string(kind)+":"+id)
	tags.Append(o.tags...)

	return Base{
		kind:      kind,
		id:        id,
		data:      fields,
		version:   version,
		ttl:       o.ttl,
		tags:      tags,
		cacheable: o.cacheable,
	}
}

func (b Base) ID() string { return b.id }

func (b Base) Kind() Kind { return b.kind }

func (b Base) Version() string { return b.version }

func (b Base) CacheKey() string {
	return string(b.kind) + ":" + b.id + ":" + b.version
}

func (b Base) CacheTags() mapset.Set[string] {
	if b.tags == nil {
		return mapset.NewThreadUnsafeSet[string]()
	}
	return b.tags.Clone()
}

func (b Base) CacheTTL() time.Duration { return b.ttl }

func (b Base) Cacheable() bool { return b.cacheable }

func (b Base) ToMap() Data {
	out := b.data.Clone()
	out[FieldID] = b.id
	out[FieldVersion] = b.version
	return out
}

// Get returns a raw field value.
func (b Base) Get(field string) (any, bool) {
	v, ok := b.data[field]
	return v, ok
}

// String returns a field as string, or "" when absent.
func (b Base) String(field string) string {
	v, ok := b.data[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Int returns a numeric field as int64, or 0 when absent.
func (b Base) Int(field string) int64 {
	n, _ := ToInt64(b.data[field])
	return n
}

// Float returns a numeric field as float64, or 0 when absent.
func (b Base) Float(field string) float64 {
	f, _ := ToFloat64(b.data[field])
	return f
}

// Bool returns a boolean field, or false when absent.
func (b Base) Bool(field string) bool {
	v, _ := b.data[field].(bool)
	return v
}

// VersionTime parses the version token as a construction timestamp.
func VersionTime(rm ReadModel) (time.Time, bool) {
	secs, err := strconv.ParseInt(rm.Version(), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

// Age reports how old rm is relative to now, based on its version.
func Age(rm ReadModel, now time.Time) (time.Duration, bool) {
	built, ok := VersionTime(rm)
	if !ok {
		return 0, false
	}
	age := now.Sub(built)
	if age < 0 {
		age = 0
	}
	return age, true
}
