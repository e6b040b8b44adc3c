package reminders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coaching-fees/internal/audit"
	"coaching-fees/internal/eventing"
	"coaching-fees/internal/fees/application/events"
	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/fees/infrastructure/memory"
)

var due = time.Date(2026, time.January, 10, 9, 0, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type capturePublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *capturePublisher) Publish(_ context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	store.PutMember(fees.Member{ID: "m1", CoachingID: "c1", Name: "Asha", Phone: "+91-9000000000", Active: true})
	live := fees.FeeRecord{
		ID: "rec-1", CoachingID: "c1", MemberID: "m1", AssignmentID: "asg-1", Title: "Foundation - Jan 2026",
		DueDate: due, FinalAmount: decimal.NewFromInt(1000), PaidAmount: decimal.NewFromInt(250),
		WaivedAmount: decimal.Zero, Status: fees.RecordPartiallyPaid, Version: 1, CreatedAt: due,
	}
	paid := live
	paid.ID = "rec-2"
	paid.PaidAmount = decimal.NewFromInt(1000)
	paid.Status = fees.RecordPaid
	require.NoError(t, store.CommitAssignment(context.Background(), fees.AssignmentCommit{
		Assignment: fees.FeeAssignment{
			ID: "asg-1", CoachingID: "c1", MemberID: "m1", FeeStructureID: "fs-1", Concern: fees.DefaultConcern,
			StartDate: due, Status: fees.AssignmentActive, Version: 1, CreatedAt: due,
		},
		Records: []fees.FeeRecord{live, paid},
	}))
	return store
}

func TestSendReminderPublishesAndAudits(t *testing.T) {
	store := seedStore(t)
	log := audit.NewMemoryStore()
	pub := &capturePublisher{}
	clock := fixedClock{now: due.AddDate(0, 0, 5)}
	svc, err := NewService(store, pub, audit.NewRecorder(log, nil), clock, nil)
	require.NoError(t, err)

	event, err := svc.SendReminder(context.Background(), "c1", "rec-1")

	require.NoError(t, err)
	assert.Equal(t, "Asha", event.MemberName)
	assert.True(t, event.Balance.Equal(decimal.NewFromInt(750)))
	assert.Equal(t, 5, event.DaysOverdue)
	require.Len(t, pub.events, 1)
	assert.IsType(t, events.ReminderRequested{}, pub.events[0])

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventReminderSent, entries[0].Event)
	assert.Equal(t, "rec-1", entries[0].EntityID)
}

func TestSendReminderRejections(t *testing.T) {
	store := seedStore(t)
	svc, err := NewService(store, &capturePublisher{}, nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.SendReminder(ctx, "c1", "rec-2")
	assert.ErrorIs(t, err, fees.ErrConflict)
	_, err = svc.SendReminder(ctx, "c1", "rec-404")
	assert.ErrorIs(t, err, fees.ErrNotFound)
	_, err = svc.SendReminder(ctx, "", "rec-1")
	assert.ErrorIs(t, err, fees.ErrValidation)

	_, err = NewService(store, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestSendReminderDeliversThroughOutbox(t *testing.T) {
	store := seedStore(t)
	channel := &recordingChannel{}
	notifier, err := NewNotifier(channel, nil)
	require.NoError(t, err)

	bus := eventing.NewInMemoryBus()
	notifier.Register(bus, eventing.NewMemoryProcessedStore())
	outbox := eventing.NewMemoryOutbox()
	dispatcher := eventing.NewDispatcher(bus, outbox, eventing.NewRegistry(events.Samples()...), &eventing.MemoryDLQ{})
	publisher := eventing.NewPublisher(outbox, dispatcher, bus, nil)

	svc, err := NewService(store, publisher, nil, fixedClock{now: due}, nil)
	require.NoError(t, err)
	_, err = svc.SendReminder(context.Background(), "c1", "rec-1")
	require.NoError(t, err)

	assert.Equal(t, 1, channel.Count())
	assert.Equal(t, 1, outbox.Count("sent"))
}
