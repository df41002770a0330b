package readmodel

import (
	"fmt"
	"sort"
	"sync"
)

// DecodeFunc rebuilds a read model of a known kind from its split entry.
type DecodeFunc func(id, version string, data Data) (ReadModel, error)

// Registry is the closed set of read model kinds the cache can decode.
type Registry struct {
	mu       sync.RWMutex
	decoders map[Kind]DecodeFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[Kind]DecodeFunc)}
}

// Register adds a decoder for kind, replacing any previous one.
func (r *Registry) Register(kind Kind, fn DecodeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[kind] = fn
}

// Kinds lists registered kinds in lexical order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.decoders))
	for k := range r.decoders {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Decode rebuilds the read model stored in e.
func (r *Registry) Decode(e Entry) (ReadModel, error) {
	r.mu.RLock()
	fn, ok := r.decoders[e.Class]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Class)
	}

	id, version, fields, err := e.split()
	if err != nil {
		return nil, err
	}

	rm, err := fn(id, version, fields)
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", e.Class, id, err)
	}
	return rm, nil
}

// GenericDecoder builds plain Base read models of kind with the given TTL.
// It suits kinds that need no typed accessors.
func GenericDecoder(kind Kind, opts ...Option) DecodeFunc {
	return func(id, version string, data Data) (ReadModel, error) {
		all := append([]Option{WithVersion(version)}, opts...)
		return NewBase(kind, id, data, all...), nil
	}
}
