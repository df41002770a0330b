package cache

import (
	goerrors "github.com/goliatone/go-errors"
)

var (
	// ErrLockNotAcquired reports that another worker holds the rebuild lock.
	ErrLockNotAcquired = goerrors.New("rebuild lock held by another worker", goerrors.CategoryConflict).
				WithTextCode("CACHE_LOCK_NOT_ACQUIRED")

	// ErrNilStore is returned by NewStrategy when no backend is given.
	ErrNilStore = goerrors.New("cache store is required", goerrors.CategoryBadInput).
			WithTextCode("CACHE_NIL_STORE")

	// ErrNilRegistry is returned by NewStrategy when no registry is given.
	ErrNilRegistry = goerrors.New("read model registry is required", goerrors.CategoryBadInput).
			WithTextCode("CACHE_NIL_REGISTRY")
)
