package cache

import (
	"context"

	"github.com/goliatone/go-readmodel-cache/readmodel"
)

// TypedBuildFunc builds a concrete read model type.
type TypedBuildFunc[M readmodel.ReadModel] func(ctx context.Context) (M, error)

// RememberAs is the typed form of Strategy.Remember. A cached entry that
// decodes to a different type is treated as a miss: the builder runs and
// its result overwrites the entry.
func RememberAs[M readmodel.ReadModel](ctx context.Context, s *Strategy, key string, build TypedBuildFunc[M], opts ...PutOption) (M, error) {
	var zero M

	rm, err := s.Remember(ctx, key, erase(build), opts...)
	if err != nil {
		return zero, err
	}
	if rm == nil {
		return zero, nil
	}
	if typed, ok := rm.(M); ok {
		return typed, nil
	}

	s.log(ctx).WarnContext(ctx, "cached read model has unexpected type, rebuilding", "key", key, "kind", rm.Kind())
	fresh, err := build(ctx)
	if err != nil {
		return zero, err
	}
	s.Put(ctx, key, fresh, opts...)
	return fresh, nil
}

// WarmAs is the typed form of Strategy.Warm.
func WarmAs[M readmodel.ReadModel](ctx context.Context, s *Strategy, key string, build TypedBuildFunc[M], opts ...PutOption) (bool, error) {
	return s.Warm(ctx, key, erase(build), opts...)
}

func erase[M readmodel.ReadModel](build TypedBuildFunc[M]) BuildFunc {
	return func(ctx context.Context) (readmodel.ReadModel, error) {
		m, err := build(ctx)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}
