// Package queue runs delayed background jobs with bounded retries. The
// memory queue serves a single process; the SQS queue gives at-least-once
// delivery across workers.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-readmodel-cache/internal/logctx"
	"github.com/google/uuid"
)

// Job is a unit of background work. Handlers must be idempotent: a job can
// run more than once.
type Job struct {
	ID      uuid.UUID       `msgpack:"id"`
	Name    string          `msgpack:"name"`
	Payload []byte          `msgpack:"payload"`
	Delay   time.Duration   `msgpack:"-"`
	Tries   int             `msgpack:"tries"`
	Backoff []time.Duration `msgpack:"backoff"`
	Timeout time.Duration   `msgpack:"timeout"`
	Attempt int             `msgpack:"attempt"`
}

// BackoffFor returns the wait before the retry that follows attempt. The
// last backoff value repeats once the schedule is exhausted.
func (j Job) BackoffFor(attempt int) time.Duration {
	if len(j.Backoff) == 0 {
		return 0
	}
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(j.Backoff) {
		i = len(j.Backoff) - 1
	}
	return j.Backoff[i]
}

func (j Job) maxTries() int {
	if j.Tries < 1 {
		return 1
	}
	return j.Tries
}

// Handler executes a job. Returning an error retries the job until its tries
// run out; wrap the error with Discard to drop the job instead.
type Handler func(ctx context.Context, job Job) error

// Queue accepts jobs for later execution.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// Consumer delivers jobs to a handler until ctx is done.
type Consumer interface {
	Run(ctx context.Context, handler Handler) error
}

// FailedSink receives jobs that exhausted their tries.
type FailedSink func(ctx context.Context, job Job, err error)

// ErrQueueClosed is returned by Enqueue after the consumer stopped.
var ErrQueueClosed = goerrors.New("queue closed", goerrors.CategoryOperation).
	WithTextCode("QUEUE_CLOSED")

type discardError struct {
	err error
}

func (d discardError) Error() string { return "discard: " + d.err.Error() }
func (d discardError) Unwrap() error { return d.err }

// Discard marks err as final. The job is dropped without retry and without
// reaching the failed sink.
func Discard(err error) error {
	if err == nil {
		return nil
	}
	return discardError{err: err}
}

// IsDiscard reports whether err was produced by Discard.
func IsDiscard(err error) bool {
	var d discardError
	return errors.As(err, &d)
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeDiscarded
	outcomeRetry
	outcomeFailed
)

// execute runs one attempt of job and decides what happens next. It
// increments job.Attempt.
func execute(ctx context.Context, logger *slog.Logger, handler Handler, job *Job) (outcome, error) {
	job.Attempt++
	log := logger.With(
		slog.String("job", job.Name),
		slog.String("job_id", job.ID.String()),
		slog.Int("attempt", job.Attempt),
	)

	jobCtx := logctx.WithLogger(ctx, log)
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, job.Timeout)
		defer cancel()
	}

	err := runHandler(jobCtx, handler, *job)
	switch {
	case err == nil:
		return outcomeDone, nil
	case IsDiscard(err):
		log.Info("job discarded", slog.Any("error", err))
		return outcomeDiscarded, err
	case job.Attempt < job.maxTries():
		log.Warn("job failed, retrying",
			slog.Any("error", err),
			slog.Duration("backoff", job.BackoffFor(job.Attempt)))
		return outcomeRetry, err
	default:
		return outcomeFailed, err
	}
}

func runHandler(ctx context.Context, handler Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = goerrors.New("job handler panicked", goerrors.CategoryInternal).
				WithMetadata(map[string]any{"panic": r})
		}
	}()
	return handler(ctx, job)
}

// LogFailed is a FailedSink that logs at error level.
func LogFailed(logger *slog.Logger) FailedSink {
	return func(ctx context.Context, job Job, err error) {
		logctx.FromContextOr(ctx, logger).Error("job exhausted retries",
			slog.String("job", job.Name),
			slog.String("job_id", job.ID.String()),
			slog.Int("attempts", job.Attempt),
			slog.Any("error", err),
		)
	}
}
