package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LockPrefix namespaces rebuild locks. Warm and Refresh share it so a key has
// at most one rebuild in flight across every process using the store.
const LockPrefix = "rebuild_lock"

// Lock is a distributed mutex held through the store's atomic Add.
type Lock struct {
	store  Store
	key    string
	holder string
	ttl    time.Duration
}

// NewLock returns an unheld lock for key.
func NewLock(store Store, key string, ttl time.Duration) *Lock {
	return &Lock{
		store:  store,
		key:    key,
		holder: uuid.NewString(),
		ttl:    ttl,
	}
}

// Key returns the store key backing the lock.
func (l *Lock) Key() string {
	return l.key
}

// Acquire tries once to take the lock. It returns ErrLockNotAcquired when
// another holder has it.
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.store.Add(ctx, l.key, []byte(l.holder), l.ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockNotAcquired
	}
	return nil
}

// Release drops the lock if this holder still owns it. An expired lock that
// was taken over by someone else is left alone.
func (l *Lock) Release(ctx context.Context) error {
	current, ok, err := l.store.Get(ctx, l.key)
	if err != nil {
		return err
	}
	if !ok || string(current) != l.holder {
		return nil
	}
	return l.store.Forget(ctx, l.key)
}
