package eventing

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"coaching-fees/internal/observability/metrics"
)

const (
	defaultDispatchLimit = 50
	defaultMaxAttempts   = 5
)

// Dispatcher sends outbox events to the in-process bus.
type Dispatcher struct {
	bus         Bus
	outbox      OutboxStore
	registry    *Registry
	dlq         DLQStore
	maxAttempts int
	logger      *zap.Logger
}

// OutboxStore provides access to outbox records.
type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkRetry(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// DLQStore records failures.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// OutboxRecord represents a pending outbox entry.
type OutboxRecord struct {
	ID       string
	Attempts int
	Envelope Envelope
}

// DispatchResult captures the outcome of a dispatch run.
type DispatchResult struct {
	Requested int
	Claimed   int
	Sent      int
	Retried   int
	Failed    int
	DLQ       int
}

// DispatcherOption configures a dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMaxAttempts sets how many handler failures an event tolerates before
// it is parked in the dead letter store.
func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithDispatchLogger sets the dispatcher logger.
func WithDispatchLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(bus Bus, outbox OutboxStore, registry *Registry, dlq DLQStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		bus:         bus,
		outbox:      outbox,
		registry:    registry,
		dlq:         dlq,
		maxAttempts: defaultMaxAttempts,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers up to limit pending outbox rows. Undecodable envelopes
// are dead-lettered at once; handler failures are retried until the attempt
// budget is spent.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (DispatchResult, error) {
	start := time.Now()
	if limit <= 0 {
		limit = defaultDispatchLimit
	}
	result := DispatchResult{Requested: limit}
	if d == nil || d.outbox == nil || d.bus == nil || d.registry == nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0, 0)
		return result, nil
	}
	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0, 0)
		return result, err
	}
	result.Claimed = len(records)

	var storeErrs []error
	for _, record := range records {
		outcome, err := d.deliver(ctx, record)
		if err != nil {
			storeErrs = append(storeErrs, err)
		}
		switch outcome {
		case outcomeSent:
			result.Sent++
		case outcomeRetry:
			result.Retried++
		case outcomeParked:
			result.DLQ++
			result.Failed++
		default:
			result.Failed++
		}
	}

	err = errors.Join(storeErrs...)
	status := metrics.ResultSuccess
	if err != nil || result.Failed > 0 {
		status = metrics.ResultError
	}
	metrics.ObserveOutboxDispatch(status, time.Since(start), result.Sent, result.Failed, result.DLQ)
	return result, err
}

type deliveryOutcome int

const (
	outcomeFailed deliveryOutcome = iota
	outcomeSent
	outcomeRetry
	outcomeParked
)

// deliver publishes one row and records its new state. The returned error
// is an outbox or dead letter store failure, never a handler failure.
func (d *Dispatcher) deliver(ctx context.Context, record OutboxRecord) (deliveryOutcome, error) {
	env := record.Envelope
	event, err := d.registry.DecodePayload(env)
	if err != nil {
		return d.giveUp(ctx, record, err)
	}
	if err := d.bus.Publish(WithEnvelope(ctx, env), event); err != nil {
		attempt := record.Attempts + 1
		if attempt >= d.maxAttempts {
			return d.giveUp(ctx, record, err)
		}
		d.logger.Warn("outbox delivery failed, will retry",
			zap.String("event_id", env.EventID),
			zap.String("event_type", env.EventType),
			zap.String("coaching_id", env.TenantID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return outcomeRetry, d.outbox.MarkRetry(ctx, record.ID)
	}
	if err := d.outbox.MarkSent(ctx, record.ID); err != nil {
		return outcomeFailed, err
	}
	return outcomeSent, nil
}

func (d *Dispatcher) giveUp(ctx context.Context, record OutboxRecord, cause error) (deliveryOutcome, error) {
	markErr := d.outbox.MarkFailed(ctx, record.ID)
	if d.park(ctx, record.Envelope, cause) {
		return outcomeParked, markErr
	}
	return outcomeFailed, markErr
}

// Run dispatches on every tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, limit int) {
	if d == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Dispatch(ctx, limit); err != nil && ctx.Err() == nil {
				d.logger.Error("outbox dispatch failed", zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) park(ctx context.Context, env Envelope, cause error) bool {
	d.logger.Error("outbox event dead-lettered",
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.Error(cause),
	)
	if d.dlq == nil {
		return false
	}
	if err := d.dlq.RecordFailure(ctx, env, cause); err != nil {
		d.logger.Error("dlq write failed", zap.String("event_id", env.EventID), zap.Error(err))
		return false
	}
	return true
}
