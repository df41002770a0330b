package invalidation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-readmodel-cache/internal/logctx"
	"github.com/goliatone/go-readmodel-cache/internal/queue"
	"github.com/vmihailenco/msgpack/v5"
)

// JobName is the queue job name of every invalidation job.
const JobName = "readmodel.invalidate"

// Scope selects what a queued job flushes.
type Scope string

const (
	// ScopeEvent flushes the tags mapped to the event class.
	ScopeEvent Scope = "event"
	// ScopeCampaign flushes the campaign tags of the event's campaign.
	ScopeCampaign Scope = "campaign"
	// ScopeCampaignPattern evicts every cached campaign entry by key prefix.
	ScopeCampaignPattern Scope = "campaign_pattern"
)

// Payload is the msgpack body of an invalidation job.
type Payload struct {
	Scope  Scope  `msgpack:"scope"`
	Event  Event  `msgpack:"event"`
	Prefix string `msgpack:"prefix,omitempty"`
}

func encodePayload(p Payload) ([]byte, error) {
	return msgpack.Marshal(p)
}

// DecodePayload reads the payload of an invalidation job.
func DecodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := msgpack.Unmarshal(raw, &p); err != nil {
		return Payload{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "decode invalidation payload")
	}
	return p, nil
}

// Dispatcher turns events into delayed queue jobs.
type Dispatcher struct {
	queue  queue.Queue
	policy Policy
	logger *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the dispatcher logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher validates policy and returns a dispatcher over q.
func NewDispatcher(q queue.Queue, policy Policy, opts ...DispatcherOption) (*Dispatcher, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	d := &Dispatcher{queue: q, policy: policy, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Policy returns the dispatcher policy.
func (d *Dispatcher) Policy() Policy { return d.policy }

// Dispatch enqueues the job for ev at its delay tier, plus any cascade.
// A completed or refunded donation also refreshes its campaign at
// delay+CascadeOffset. A verified or activated organization also evicts
// every cached campaign entry at delay+CascadeOffset.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	return d.dispatch(ctx, ev, 0)
}

func (d *Dispatcher) dispatch(ctx context.Context, ev Event, offset time.Duration) error {
	delay := d.policy.DelayFor(ev.Class) + offset
	cascade := delay + d.policy.CascadeOffset

	errs := []error{d.enqueue(ctx, Payload{Scope: ScopeEvent, Event: ev}, delay)}

	switch ev.Class {
	case DonationCompleted, DonationRefunded:
		if ev.CampaignID != "" {
			errs = append(errs, d.enqueue(ctx, Payload{Scope: ScopeCampaign, Event: ev}, cascade))
		}
	case OrganizationVerified, OrganizationActivated:
		errs = append(errs, d.enqueue(ctx, Payload{
			Scope:  ScopeCampaignPattern,
			Event:  ev,
			Prefix: CampaignKeyPrefix,
		}, cascade))
	}
	return errors.Join(errs...)
}

// DispatchBatch groups events by entity in first seen order and staggers
// each group by BatchStagger.
func (d *Dispatcher) DispatchBatch(ctx context.Context, events []Event) error {
	var order []Entity
	groups := make(map[Entity][]Event)
	for _, ev := range events {
		entity := ev.Class.Entity()
		if _, ok := groups[entity]; !ok {
			order = append(order, entity)
		}
		groups[entity] = append(groups[entity], ev)
	}

	var errs []error
	for i, entity := range order {
		offset := time.Duration(i) * d.policy.BatchStagger
		for _, ev := range groups[entity] {
			errs = append(errs, d.dispatch(ctx, ev, offset))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) enqueue(ctx context.Context, p Payload, delay time.Duration) error {
	raw, err := encodePayload(p)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "encode invalidation payload")
	}

	job := queue.Job{
		Name:    JobName,
		Payload: raw,
		Delay:   delay,
		Tries:   d.policy.Tries,
		Backoff: d.policy.Backoff,
		Timeout: d.policy.Timeout,
	}
	log := logctx.FromContextOr(ctx, d.logger)
	if err := d.queue.Enqueue(ctx, job); err != nil {
		log.ErrorContext(ctx, "invalidation job not enqueued",
			append(p.Event.LogAttrs(), "scope", string(p.Scope), "error", err)...)
		return err
	}
	log.DebugContext(ctx, "invalidation job enqueued",
		"event_class", string(p.Event.Class), "scope", string(p.Scope), "delay", delay)
	return nil
}
