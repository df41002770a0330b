// Package readmodel defines the read model data contract used by the cache layer.
//
// A read model is an immutable, versioned projection of domain state. Its version
// is stamped once at construction (unix seconds) and doubles as the staleness
// signal and a cache key component:
//
//	cacheKey = kind + ":" + id + ":" + version
//
// Read models are persisted as an Entry:
//
//	{"class": "campaign", "data": {"id": "7", "version": "1700000000", ...}, "version": "1700000000", "cached_at": 1700000005}
//
// Decoding goes through a Registry, a closed dispatch table of known kinds.
// Entries naming an unregistered kind fail with ErrUnknownKind instead of being
// instantiated dynamically.
//
// Concrete read models embed Base and override CacheTags when they need tags
// beyond the kind defaults (kind and kind:id). The tag set is a manually kept
// contract with the invalidation side: every tag an invalidation flushes to
// evict the read model must be present.
package readmodel
