package eventing

import "context"

type (
	envelopeKey struct{}
	metaKey     struct{}
)

// WithEnvelope exposes the envelope being delivered to handlers.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey{}, env)
}

// EnvelopeFromContext returns the envelope of the event being handled.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(envelopeKey{}).(Envelope)
	return env, ok
}

// WithTenantID pins the coaching recorded on envelopes published from ctx.
func WithTenantID(ctx context.Context, coachingID string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.TenantID = coachingID })
}

// WithCorrelationID ties events published from ctx to one request or bulk run.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.CorrelationID = correlationID })
}

// WithEventID fixes the id of the next event published from ctx. Publishing
// twice with the same id is deduplicated by idempotent consumers.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.EventID = eventID })
}

// MetaFromContext returns the publish metadata carried by ctx. coachingID
// fills TenantID when ctx does not pin one.
func MetaFromContext(ctx context.Context, coachingID string) Meta {
	meta, _ := ctx.Value(metaKey{}).(Meta)
	if meta.TenantID == "" {
		meta.TenantID = coachingID
	}
	return meta
}

func withMeta(ctx context.Context, apply func(*Meta)) context.Context {
	meta, _ := ctx.Value(metaKey{}).(Meta)
	apply(&meta)
	return context.WithValue(ctx, metaKey{}, meta)
}
