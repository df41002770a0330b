package cache

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

type refreshTask struct {
	ctx   context.Context
	key   string
	build BuildFunc
	opts  []PutOption
}

// refresher runs stale-while-revalidate rebuilds off the request path.
// A key already queued or running is not queued again.
type refresher struct {
	strategy *Strategy
	tasks    chan refreshTask
	inflight *xsync.MapOf[string, struct{}]
	group    errgroup.Group

	mu     sync.RWMutex
	closed bool
}

func newRefresher(s *Strategy, workers, queueSize int) *refresher {
	r := &refresher{
		strategy: s,
		tasks:    make(chan refreshTask, queueSize),
		inflight: xsync.NewMapOf[string, struct{}](),
	}
	for i := 0; i < workers; i++ {
		r.group.Go(r.work)
	}
	return r
}

func (r *refresher) work() error {
	for task := range r.tasks {
		if _, err := r.strategy.Refresh(task.ctx, task.key, task.build, task.opts...); err != nil {
			r.strategy.log(task.ctx).WarnContext(task.ctx, "background refresh failed", "key", task.key, "error", err)
		}
		r.inflight.Delete(task.key)
	}
	return nil
}

// schedule queues a refresh for key. It reports false when the key is
// already pending, the queue is full or the refresher is closed.
func (r *refresher) schedule(ctx context.Context, key string, build BuildFunc, opts []PutOption) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}

	if _, loaded := r.inflight.LoadOrStore(key, struct{}{}); loaded {
		return false
	}

	task := refreshTask{
		ctx:   context.WithoutCancel(ctx),
		key:   key,
		build: build,
		opts:  opts,
	}

	select {
	case r.tasks <- task:
		return true
	default:
		r.inflight.Delete(key)
		r.strategy.metrics.refreshDropped(ctx)
		r.strategy.log(ctx).InfoContext(ctx, "refresh queue full, dropping refresh", "key", key)
		return false
	}
}

// pending reports how many keys are queued or being refreshed.
func (r *refresher) pending() int {
	return r.inflight.Size()
}

// close stops accepting work and waits for queued refreshes, or for ctx.
func (r *refresher) close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.tasks)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = r.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
