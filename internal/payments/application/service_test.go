package application

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coaching-fees/internal/audit"
	"coaching-fees/internal/auth"
	"coaching-fees/internal/fees/application/events"
	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/fees/infrastructure/memory"
	"coaching-fees/internal/locks"
)

var t0 = time.Date(2026, time.February, 3, 10, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

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

func setup(t *testing.T) (*Service, *memory.Store, *audit.MemoryStore, *capturePublisher) {
	t.Helper()
	store := memory.NewStore()
	record := fees.FeeRecord{
		ID: "rec-1", CoachingID: "c1", MemberID: "m1", AssignmentID: "asg-1", Title: "Foundation - Feb 2026",
		DueDate: t0, FinalAmount: dec("1000"), PaidAmount: decimal.Zero, WaivedAmount: decimal.Zero,
		Status: fees.RecordPending, Version: 1, CreatedAt: t0,
	}
	require.NoError(t, store.CommitAssignment(context.Background(), fees.AssignmentCommit{
		Assignment: fees.FeeAssignment{
			ID: "asg-1", CoachingID: "c1", MemberID: "m1", FeeStructureID: "fs-1", Concern: fees.DefaultConcern,
			StartDate: t0, Status: fees.AssignmentActive, Version: 1, CreatedAt: t0,
		},
		Records: []fees.FeeRecord{record},
	}))
	log := audit.NewMemoryStore()
	pub := &capturePublisher{}
	clock := fixedClock{now: t0.Add(time.Hour)}
	svc, err := NewService(store, locks.NewKeyedMutex(), audit.NewRecorder(log, nil, audit.WithClock(clock)),
		WithClock(clock), WithPublisher(pub))
	require.NoError(t, err)
	return svc, store, log, pub
}

func operatorCtx() context.Context {
	return auth.WithIdentity(context.Background(), "c1", auth.RoleOperator, "desk-1")
}

func TestRecordPaymentUpdatesRecord(t *testing.T) {
	svc, _, log, pub := setup(t)

	payment, record, err := svc.RecordPayment(operatorCtx(), PaymentRequest{
		CoachingID: "c1", RecordID: "rec-1", Amount: dec("400"), Mode: fees.ModeUPI, TransactionRef: " upi-77 ",
	})

	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^RCP-20260203-[0-9A-F]{8}$`), payment.ReceiptNo)
	assert.Equal(t, "upi-77", payment.TransactionRef)
	assert.Equal(t, "desk-1", payment.RecordedBy)
	assert.Equal(t, fees.RecordPartiallyPaid, record.Status)
	assert.True(t, record.Balance().Equal(dec("600")))
	assert.Equal(t, 2, record.Version)

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.EventPaymentRecorded, entries[0].Event)
	assert.Equal(t, "desk-1", entries[0].ActorID)
	assert.Equal(t, "PARTIALLY_PAID", entries[0].After.Get("status").Str())

	require.Len(t, pub.events, 1)
	evt := pub.events[0].(events.PaymentRecorded)
	assert.Equal(t, payment.ReceiptNo, evt.ReceiptNo)
	assert.Equal(t, "PARTIALLY_PAID", evt.RecordStatus)
}

func TestRecordPaymentRejections(t *testing.T) {
	svc, _, _, _ := setup(t)
	ctx := operatorCtx()

	_, _, err := svc.RecordPayment(ctx, PaymentRequest{CoachingID: "c1", RecordID: "rec-1", Amount: dec("1000.01"), Mode: fees.ModeCash})
	assert.ErrorIs(t, err, fees.ErrValidation)
	_, _, err = svc.RecordPayment(ctx, PaymentRequest{CoachingID: "c1", RecordID: "rec-1", Amount: dec("0"), Mode: fees.ModeCash})
	assert.ErrorIs(t, err, fees.ErrValidation)
	_, _, err = svc.RecordPayment(ctx, PaymentRequest{CoachingID: "c1", RecordID: "rec-1", Amount: dec("10"), Mode: "BARTER"})
	assert.ErrorIs(t, err, fees.ErrValidation)
	_, _, err = svc.RecordPayment(ctx, PaymentRequest{CoachingID: "c1", RecordID: "rec-x", Amount: dec("10"), Mode: fees.ModeCash})
	assert.ErrorIs(t, err, fees.ErrNotFound)
	_, _, err = svc.RecordPayment(ctx, PaymentRequest{CoachingID: "c2", RecordID: "rec-1", Amount: dec("10"), Mode: fees.ModeCash})
	assert.ErrorIs(t, err, fees.ErrNotFound)

	_, record, err := svc.RecordPayment(ctx, PaymentRequest{CoachingID: "c1", RecordID: "rec-1", Amount: dec("1000"), Mode: fees.ModeCash})
	require.NoError(t, err)
	assert.Equal(t, fees.RecordPaid, record.Status)
	_, _, err = svc.RecordPayment(ctx, PaymentRequest{CoachingID: "c1", RecordID: "rec-1", Amount: dec("1"), Mode: fees.ModeCash})
	assert.ErrorIs(t, err, fees.ErrConflict)
}

func TestRecordRefundLimitsToPayment(t *testing.T) {
	svc, store, log, _ := setup(t)
	ctx := operatorCtx()
	payment, _, err := svc.RecordPayment(ctx, PaymentRequest{CoachingID: "c1", RecordID: "rec-1", Amount: dec("1000"), Mode: fees.ModeCash})
	require.NoError(t, err)

	refund, record, err := svc.RecordRefund(ctx, RefundRequest{CoachingID: "c1", PaymentID: payment.ID, Amount: dec("300"), Reason: "dropped batch"})
	require.NoError(t, err)
	assert.Equal(t, fees.ModeCash, refund.Mode)
	assert.Equal(t, fees.RecordPartiallyPaid, record.Status)
	assert.True(t, record.PaidAmount.Equal(dec("700")))

	_, _, err = svc.RecordRefund(ctx, RefundRequest{CoachingID: "c1", PaymentID: payment.ID, Amount: dec("700.01")})
	assert.ErrorIs(t, err, fees.ErrValidation)
	_, record, err = svc.RecordRefund(ctx, RefundRequest{CoachingID: "c1", PaymentID: payment.ID, Amount: dec("700")})
	require.NoError(t, err)
	assert.Equal(t, fees.RecordPending, record.Status)

	_, _, err = svc.RecordRefund(ctx, RefundRequest{CoachingID: "c1", PaymentID: "pay-missing", Amount: dec("1")})
	assert.ErrorIs(t, err, fees.ErrNotFound)

	history, err := store.LoadHistory(context.Background(), "c1", "m1")
	require.NoError(t, err)
	assert.Len(t, history.Refunds, 2)
	assert.Len(t, log.Entries(), 3)
}

func TestWaiveRecord(t *testing.T) {
	svc, store, log, _ := setup(t)
	ctx := operatorCtx()
	payment, _, err := svc.RecordPayment(ctx, PaymentRequest{CoachingID: "c1", RecordID: "rec-1", Amount: dec("250"), Mode: fees.ModeCash})
	require.NoError(t, err)

	_, _, err = svc.WaiveRecord(ctx, "c1", "rec-1", "  ")
	assert.ErrorIs(t, err, fees.ErrValidation)

	waiver, record, err := svc.WaiveRecord(ctx, "c1", "rec-1", "hardship")
	require.NoError(t, err)
	assert.True(t, waiver.WaivedAmount.Equal(dec("750")))
	assert.Equal(t, "desk-1", waiver.Actor)
	assert.Equal(t, fees.RecordWaived, record.Status)
	assert.True(t, record.PaidAmount.Add(record.WaivedAmount).Equal(record.FinalAmount))

	_, _, err = svc.WaiveRecord(ctx, "c1", "rec-1", "again")
	assert.ErrorIs(t, err, fees.ErrConflict)
	_, _, err = svc.RecordRefund(ctx, RefundRequest{CoachingID: "c1", PaymentID: payment.ID, Amount: dec("10")})
	assert.ErrorIs(t, err, fees.ErrConflict)

	stored, err := store.GetRecord(context.Background(), "c1", "rec-1")
	require.NoError(t, err)
	assert.Equal(t, fees.RecordWaived, stored.Status)
	last := log.Entries()[len(log.Entries())-1]
	assert.Equal(t, audit.EventFeeWaived, last.Event)
	assert.Equal(t, "hardship", last.Meta.Get("reason").Str())
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	svc, store, _, _ := setup(t)
	ctx := operatorCtx()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = svc.RecordPayment(ctx, PaymentRequest{CoachingID: "c1", RecordID: "rec-1", Amount: dec("300"), Mode: fees.ModeCash})
		}()
	}
	wg.Wait()

	record, err := store.GetRecord(context.Background(), "c1", "rec-1")
	require.NoError(t, err)
	assert.True(t, record.PaidAmount.Equal(dec("900")), record.PaidAmount.String())
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, locks.NewKeyedMutex(), nil)
	assert.Error(t, err)
	_, err = NewService(memory.NewStore(), nil, nil)
	assert.Error(t, err)
}
