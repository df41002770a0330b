package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

// MemoryQueue holds delayed jobs in process. Delays run on the injected
// clock, so tests drive them with a fake clock. Jobs are lost when the
// process exits.
type MemoryQueue struct {
	settings

	mu      sync.Mutex
	ready   []Job
	wake    chan struct{}
	closed  atomic.Bool
	timerMu sync.Mutex
	timers  *xsync.MapOf[uuid.UUID, clockwork.Timer]
	running atomic.Int32
}

var (
	_ Queue    = (*MemoryQueue)(nil)
	_ Consumer = (*MemoryQueue)(nil)
)

func NewMemoryQueue(opts ...Option) *MemoryQueue {
	return &MemoryQueue{
		settings: newSettings(opts),
		wake:     make(chan struct{}, 1),
		timers:   xsync.NewMapOf[uuid.UUID, clockwork.Timer](),
	}
}

// Enqueue schedules job after job.Delay. A zero ID is replaced with a new one.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	q.schedule(job)
	return nil
}

// schedule delivers job once its delay elapses. timerMu is held until the
// timer is recorded, so a callback firing early cannot miss its own entry.
func (q *MemoryQueue) schedule(job Job) {
	if job.Delay <= 0 {
		q.push(job)
		return
	}
	id := job.ID

	q.timerMu.Lock()
	defer q.timerMu.Unlock()
	if q.closed.Load() {
		return
	}
	timer := q.clock.AfterFunc(job.Delay, func() {
		q.timerMu.Lock()
		_, live := q.timers.LoadAndDelete(id)
		q.timerMu.Unlock()
		if live {
			q.push(job)
		}
	})
	q.timers.Store(id, timer)
}

func (q *MemoryQueue) push(job Job) {
	q.mu.Lock()
	q.ready = append(q.ready, job)
	q.mu.Unlock()
	q.signal()
}

func (q *MemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ready) == 0 {
		return Job{}, false
	}
	job := q.ready[0]
	q.ready = q.ready[1:]
	if len(q.ready) > 0 {
		q.signal()
	}
	return job, true
}

// Pending returns the number of jobs waiting on a delay or a worker.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	n := len(q.ready)
	q.mu.Unlock()
	return n + q.timers.Size()
}

// Running returns the number of jobs currently in a handler.
func (q *MemoryQueue) Running() int {
	return int(q.running.Load())
}

// Run starts the workers and blocks until ctx is done. Delayed jobs that
// have not fired are dropped.
func (q *MemoryQueue) Run(ctx context.Context, handler Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			q.work(ctx, handler)
			return nil
		})
	}
	err := g.Wait()

	q.closed.Store(true)
	q.timerMu.Lock()
	q.timers.Range(func(id uuid.UUID, t clockwork.Timer) bool {
		t.Stop()
		q.timers.Delete(id)
		return true
	})
	q.timerMu.Unlock()
	return err
}

func (q *MemoryQueue) work(ctx context.Context, handler Handler) {
	for ctx.Err() == nil {
		job, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}
		q.process(ctx, handler, job)
	}
}

func (q *MemoryQueue) process(ctx context.Context, handler Handler, job Job) {
	q.running.Add(1)
	defer q.running.Add(-1)

	result, err := execute(ctx, q.logger, handler, &job)
	switch result {
	case outcomeRetry:
		job.Delay = job.BackoffFor(job.Attempt)
		q.schedule(job)
	case outcomeFailed:
		q.failed(ctx, job, err)
	}
}
