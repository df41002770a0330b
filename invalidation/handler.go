package invalidation

import (
	"context"
	"log/slog"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-readmodel-cache/internal/logctx"
	"github.com/goliatone/go-readmodel-cache/internal/queue"
)

// ErrModelMissing reports that the record an event refers to no longer
// exists. Jobs failing with it are discarded.
var ErrModelMissing = goerrors.New("event model missing", goerrors.CategoryNotFound).
	WithTextCode("INVALIDATION_MODEL_MISSING")

// ModelResolver checks that the record behind an event still exists.
type ModelResolver interface {
	Exists(ctx context.Context, entity Entity, id string) (bool, error)
}

// JobHandler runs invalidation jobs taken from the queue.
type JobHandler struct {
	invalidator *Invalidator
	resolver    ModelResolver
	logger      *slog.Logger
}

// NewJobHandler returns a handler. resolver may be nil, which skips the
// missing model check.
func NewJobHandler(invalidator *Invalidator, resolver ModelResolver, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{invalidator: invalidator, resolver: resolver, logger: logger}
}

// Handle executes job. Flush errors are returned so the queue retries.
func (h *JobHandler) Handle(ctx context.Context, job queue.Job) error {
	p, err := DecodePayload(job.Payload)
	if err != nil {
		return queue.Discard(err)
	}
	ctx = logctx.WithLogger(ctx, logctx.FromContextOr(ctx, h.logger).With(
		"event_class", string(p.Event.Class),
		"scope", string(p.Scope),
	))

	if err := h.checkModel(ctx, p.Event); err != nil {
		return err
	}

	switch p.Scope {
	case ScopeEvent:
		return h.invalidator.Apply(ctx, p.Event)
	case ScopeCampaign:
		return h.invalidator.flush(ctx, CampaignTags(p.Event.CampaignID, p.Event.OrganizationID))
	case ScopeCampaignPattern:
		prefix := p.Prefix
		if prefix == "" {
			prefix = CampaignKeyPrefix
		}
		return h.invalidator.InvalidatePattern(ctx, prefix)
	}
	return queue.Discard(goerrors.New("unknown invalidation scope "+string(p.Scope), goerrors.CategoryBadInput))
}

// Queue returns Handle as a queue handler.
func (h *JobHandler) Queue() queue.Handler {
	return h.Handle
}

func (h *JobHandler) checkModel(ctx context.Context, ev Event) error {
	if h.resolver == nil || ev.Class.Action() == ActionDeleted {
		return nil
	}
	id := ev.EntityID()
	if id == "" {
		return nil
	}
	ok, err := h.resolver.Exists(ctx, ev.Class.Entity(), id)
	if err != nil {
		return err
	}
	if !ok {
		return queue.Discard(goerrors.Wrap(ErrModelMissing, goerrors.CategoryNotFound,
			string(ev.Class.Entity())+" "+id))
	}
	return nil
}

// FailedSink logs exhausted invalidation jobs at error level with the full
// event. The entry may stay stale until its TTL runs out.
func FailedSink(logger *slog.Logger) queue.FailedSink {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, job queue.Job, err error) {
		log := logctx.FromContextOr(ctx, logger)
		attrs := []any{
			"job_id", job.ID.String(),
			"attempts", job.Attempt,
			"error", err,
		}
		p, decodeErr := DecodePayload(job.Payload)
		if decodeErr == nil {
			attrs = append(attrs, "scope", string(p.Scope))
			attrs = append(attrs, p.Event.LogAttrs()...)
		}
		log.ErrorContext(ctx, "cache invalidation failed after retries", attrs...)
	}
}
