package eventing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"coaching-fees/internal/observability/metrics"
)

const slowPublishThreshold = 50 * time.Millisecond

// Publisher writes events to the outbox and optionally triggers dispatch.
type Publisher struct {
	outbox   OutboxWriter
	dispatch *Dispatcher
	sub      Subscriber
	logger   *zap.Logger
}

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Subscriber registers handlers.
type Subscriber interface {
	Subscribe(eventType string, handler Handler)
}

// NewPublisher constructs a publisher. dispatch may be nil when a background
// dispatcher drains the outbox.
func NewPublisher(outbox OutboxWriter, dispatch *Dispatcher, sub Subscriber, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{outbox: outbox, dispatch: dispatch, sub: sub, logger: logger}
}

// Publish writes the event to the outbox. Dispatch failures after a
// successful insert are logged; the event stays pending.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	start := time.Now()
	if p == nil || p.outbox == nil {
		return nil
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx, ""))
	if err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	duration := time.Since(start)
	metrics.ObserveOutboxPublish(metrics.ResultSuccess, duration)
	if duration > slowPublishThreshold {
		p.logger.Warn("slow outbox publish",
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("event_type", env.EventType),
		)
	}
	if p.dispatch != nil {
		if _, err := p.dispatch.Dispatch(ctx, 1); err != nil {
			p.logger.Warn("inline dispatch failed", zap.String("event_id", env.EventID), zap.Error(err))
		}
	}
	return nil
}

// Subscribe delegates to the underlying subscriber when available.
func (p *Publisher) Subscribe(eventType string, handler Handler) {
	if p == nil || p.sub == nil {
		return
	}
	p.sub.Subscribe(eventType, handler)
}
