package eventing

import (
	"context"
	"time"

	"coaching-fees/internal/observability/metrics"
)

// ProcessedStore remembers which consumer has handled which event.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// Subscribe registers handler for eventType under consumerName. With a
// store, redelivered envelopes are skipped once the consumer succeeded.
func Subscribe(bus Subscriber, eventType, consumerName string, handler Handler, store ProcessedStore) {
	if store != nil {
		handler = WrapHandler(consumerName, handler, store)
	}
	bus.Subscribe(eventType, handler)
}

// WrapHandler makes handler idempotent per consumer. Failed runs are not
// marked so the dispatcher retry reaches the handler again.
func WrapHandler(consumerName string, handler Handler, store ProcessedStore) Handler {
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok || env.EventID == "" {
			return handler(ctx, event)
		}
		done, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil || done {
			return err
		}
		occurredAt := env.OccurredAt
		if occurredAt.IsZero() {
			_, _, occurredAt = scopeOf(event)
		}
		if !occurredAt.IsZero() {
			metrics.ObserveConsumerLag(consumerName, time.Since(occurredAt))
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}
