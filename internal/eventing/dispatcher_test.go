package eventing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coaching-fees/internal/eventing"
)

type noteAdded struct {
	CoachingID string
	MemberID   string
	Text       string
	OccurredAt time.Time
}

type unregistered struct {
	CoachingID string
}

func newPipeline(opts ...eventing.DispatcherOption) (*eventing.InMemoryBus, *eventing.MemoryOutbox, *eventing.MemoryDLQ, *eventing.Dispatcher, *eventing.Publisher) {
	bus := eventing.NewInMemoryBus()
	outbox := eventing.NewMemoryOutbox()
	dlq := &eventing.MemoryDLQ{}
	dispatcher := eventing.NewDispatcher(bus, outbox, eventing.NewRegistry(noteAdded{}), dlq, opts...)
	publisher := eventing.NewPublisher(outbox, dispatcher, bus, nil)
	return bus, outbox, dlq, dispatcher, publisher
}

func TestPublishDispatchesInlineWithEnvelope(t *testing.T) {
	bus, outbox, _, _, publisher := newPipeline()

	var got noteAdded
	var env eventing.Envelope
	bus.Subscribe(eventing.EventTypeOf[noteAdded](), func(ctx context.Context, event any) error {
		got = event.(noteAdded)
		env, _ = eventing.EnvelopeFromContext(ctx)
		return nil
	})

	err := publisher.Publish(context.Background(), noteAdded{CoachingID: "c1", MemberID: "m1", Text: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "hi", got.Text)
	assert.Equal(t, "c1", env.TenantID)
	assert.Equal(t, "m1", env.MemberID)
	assert.Equal(t, env.EventID, env.CorrelationID)
	assert.Equal(t, 1, outbox.Count("sent"))
}

func TestIdempotentConsumerRunsOnce(t *testing.T) {
	bus := eventing.NewInMemoryBus()
	outbox := eventing.NewMemoryOutbox()
	dispatcher := eventing.NewDispatcher(bus, outbox, eventing.NewRegistry(noteAdded{}), nil)
	publisher := eventing.NewPublisher(outbox, nil, bus, nil)

	calls := 0
	eventing.Subscribe(bus, eventing.EventTypeOf[noteAdded](), "counter", func(ctx context.Context, event any) error {
		calls++
		return nil
	}, eventing.NewMemoryProcessedStore())

	ctx := eventing.WithEventID(context.Background(), "evt-1")
	require.NoError(t, publisher.Publish(ctx, noteAdded{CoachingID: "c1"}))
	require.NoError(t, publisher.Publish(ctx, noteAdded{CoachingID: "c1"}))

	result, err := dispatcher.Dispatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Sent)
	assert.Equal(t, 1, calls)
}

func TestHandlerFailureRetriesThenDeadLetters(t *testing.T) {
	bus := eventing.NewInMemoryBus()
	outbox := eventing.NewMemoryOutbox()
	dlq := &eventing.MemoryDLQ{}
	dispatcher := eventing.NewDispatcher(bus, outbox, eventing.NewRegistry(noteAdded{}), dlq, eventing.WithMaxAttempts(3))
	publisher := eventing.NewPublisher(outbox, nil, bus, nil)

	bus.Subscribe(eventing.EventTypeOf[noteAdded](), func(ctx context.Context, event any) error {
		return errors.New("channel down")
	})
	require.NoError(t, publisher.Publish(context.Background(), noteAdded{CoachingID: "c1"}))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		result, err := dispatcher.Dispatch(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Retried, "attempt %d", i+1)
	}
	result, err := dispatcher.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DLQ)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, outbox.Count("failed"))

	letters := dlq.Entries()
	require.Len(t, letters, 1)
	assert.Equal(t, "channel down", letters[0].Error)

	result, err = dispatcher.Dispatch(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, result.Claimed)
}

func TestUnknownEventTypeGoesStraightToDLQ(t *testing.T) {
	_, outbox, dlq, dispatcher, _ := newPipeline()
	env, err := eventing.BuildEnvelope(unregistered{CoachingID: "c1"}, eventing.Meta{})
	require.NoError(t, err)
	_, err = outbox.Insert(context.Background(), env)
	require.NoError(t, err)

	result, err := dispatcher.Dispatch(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DLQ)
	require.Len(t, dlq.Entries(), 1)
	assert.Contains(t, dlq.Entries()[0].Error, "unknown event type")
}

func TestBuildEnvelopeMetaOverrides(t *testing.T) {
	at := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	env, err := eventing.BuildEnvelope(&noteAdded{CoachingID: "c1", MemberID: "m1", OccurredAt: at}, eventing.Meta{
		TenantID:      "c2",
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "c2", env.TenantID)
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.Equal(t, at, env.OccurredAt)
	assert.Equal(t, 1, env.SchemaVersion)
	assert.Equal(t, eventing.EventTypeOf[noteAdded](), env.EventType)
}

type scopedNote struct {
	Coaching string
	At       time.Time
}

func (n scopedNote) EventScope() (string, string, time.Time) {
	return n.Coaching, "m7", n.At
}

func TestBuildEnvelopeUsesEventScope(t *testing.T) {
	at := time.Date(2026, time.April, 2, 0, 0, 0, 0, time.UTC)
	env, err := eventing.BuildEnvelope(scopedNote{Coaching: "c5", At: at}, eventing.Meta{})
	require.NoError(t, err)
	assert.Equal(t, "c5", env.TenantID)
	assert.Equal(t, "m7", env.MemberID)
	assert.Equal(t, at, env.OccurredAt)
}

func TestContextMetaAccumulates(t *testing.T) {
	ctx := eventing.WithCorrelationID(context.Background(), "bulk-1")
	ctx = eventing.WithEventID(ctx, "evt-9")

	meta := eventing.MetaFromContext(ctx, "c1")
	assert.Equal(t, "bulk-1", meta.CorrelationID)
	assert.Equal(t, "evt-9", meta.EventID)
	assert.Equal(t, "c1", meta.TenantID)

	meta = eventing.MetaFromContext(eventing.WithTenantID(ctx, "c3"), "c1")
	assert.Equal(t, "c3", meta.TenantID)
}

func TestRegistryDecodesRegisteredTypes(t *testing.T) {
	registry := eventing.NewRegistry(&noteAdded{}, scopedNote{})
	assert.Len(t, registry.Types(), 2)
	assert.False(t, registry.Known(eventing.EventTypeOf[unregistered]()))

	env, err := eventing.BuildEnvelope(noteAdded{CoachingID: "c1", Text: "paid"}, eventing.Meta{})
	require.NoError(t, err)
	decoded, err := registry.DecodePayload(env)
	require.NoError(t, err)
	assert.Equal(t, "paid", decoded.(noteAdded).Text)
}

func TestBusJoinsHandlerErrors(t *testing.T) {
	bus := eventing.NewInMemoryBus()
	first := errors.New("sms down")
	calls := 0
	bus.Subscribe(eventing.EventTypeOf[noteAdded](), func(context.Context, any) error { calls++; return first })
	bus.Subscribe(eventing.EventTypeOf[noteAdded](), func(context.Context, any) error { calls++; return nil })

	err := bus.Publish(context.Background(), noteAdded{})
	assert.ErrorIs(t, err, first)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, bus.Publish(context.Background(), nil), eventing.ErrNilEvent)
}
