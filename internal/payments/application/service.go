package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coaching-fees/internal/audit"
	"coaching-fees/internal/auth"
	"coaching-fees/internal/fees/application/events"
	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/locks"
	"coaching-fees/internal/observability/metrics"
)

const (
	kindPayment = "payment"
	kindRefund  = "refund"
	kindWaiver  = "waiver"
)

// Store is the persistence payments need.
type Store interface {
	fees.RecordReader
	fees.RecordWriter
}

// EventPublisher emits domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// PaymentRequest records money received against a record.
type PaymentRequest struct {
	CoachingID     string
	RecordID       string
	Amount         decimal.Decimal
	Mode           fees.PaymentMode
	TransactionRef string
	// PaidAt defaults to now.
	PaidAt time.Time
}

// RefundRequest returns part of a payment.
type RefundRequest struct {
	CoachingID string
	PaymentID  string
	Amount     decimal.Decimal
	Mode       fees.PaymentMode
	Reason     string
}

// Service records payments, refunds and manual waivers.
type Service struct {
	store     Store
	locker    locks.Locker
	recorder  *audit.Recorder
	publisher EventPublisher
	clock     fees.Clock
	logger    *zap.Logger
}

// Option configures the service.
type Option func(*Service)

func WithClock(clock fees.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithPublisher(publisher EventPublisher) Option {
	return func(s *Service) { s.publisher = publisher }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs the payments service.
func NewService(store Store, locker locks.Locker, recorder *audit.Recorder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("payments service: nil store")
	}
	if locker == nil {
		return nil, errors.New("payments service: nil locker")
	}
	s := &Service{
		store:    store,
		locker:   locker,
		recorder: recorder,
		clock:    fees.SystemClock{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RecordPayment stores a payment of at most the record's balance.
func (s *Service) RecordPayment(ctx context.Context, req PaymentRequest) (fees.Payment, fees.FeeRecord, error) {
	if !req.Amount.IsPositive() {
		return fees.Payment{}, fees.FeeRecord{}, fees.Invalid("amount", "must be positive")
	}
	if !req.Mode.Valid() {
		return fees.Payment{}, fees.FeeRecord{}, fees.Invalid("mode", "unknown payment mode "+string(req.Mode))
	}
	amount := fees.RoundMoney(req.Amount)

	var payment fees.Payment
	var updated fees.FeeRecord
	err := s.withRecord(ctx, req.CoachingID, req.RecordID, func(record fees.FeeRecord) error {
		switch record.Status {
		case fees.RecordPaid:
			return fees.Conflict("record %s is already paid", record.ID)
		case fees.RecordWaived:
			return fees.Conflict("record %s is waived", record.ID)
		}
		if balance := record.Balance(); amount.GreaterThan(balance) {
			return fees.Invalid("amount", fmt.Sprintf("exceeds the balance of %s", balance.StringFixed(2)))
		}

		now := s.clock.Now()
		paidAt := req.PaidAt
		if paidAt.IsZero() {
			paidAt = now
		}
		payment = fees.Payment{
			ID:             fees.NewID("pay"),
			CoachingID:     record.CoachingID,
			MemberID:       record.MemberID,
			RecordID:       record.ID,
			Amount:         amount,
			Mode:           req.Mode,
			TransactionRef: strings.TrimSpace(req.TransactionRef),
			ReceiptNo:      fees.NewReceiptNo(paidAt),
			PaidAt:         paidAt.UTC(),
			RecordedBy:     auth.SubjectFromContext(ctx),
			CreatedAt:      now,
		}
		updated = record
		updated.PaidAmount = record.PaidAmount.Add(amount)
		updated.Status = updated.SettledStatus()
		updated.UpdatedAt = now
		if err := s.store.SaveRecordMutation(ctx, fees.RecordMutation{
			Record:          updated,
			ExpectedVersion: record.Version,
			Payment:         &payment,
		}); err != nil {
			return err
		}
		updated.Version = record.Version + 1

		s.recorder.Record(ctx, audit.Entry{
			CoachingID: record.CoachingID,
			MemberID:   record.MemberID,
			Event:      audit.EventPaymentRecorded,
			EntityType: audit.EntityPayment,
			EntityID:   payment.ID,
			Before:     audit.RecordFields(record),
			After:      audit.RecordFields(updated),
			Meta:       audit.PaymentFields(payment),
		})
		return nil
	})
	if err != nil {
		return fees.Payment{}, fees.FeeRecord{}, err
	}

	metrics.IncPaymentEvent(kindPayment, string(payment.Mode))
	s.publish(ctx, events.PaymentRecorded{
		CoachingID:   payment.CoachingID,
		MemberID:     payment.MemberID,
		RecordID:     payment.RecordID,
		PaymentID:    payment.ID,
		ReceiptNo:    payment.ReceiptNo,
		Amount:       payment.Amount,
		Mode:         string(payment.Mode),
		RecordStatus: string(updated.Status),
		OccurredAt:   payment.CreatedAt,
	})
	s.logger.Info("payment recorded",
		zap.String("coaching_id", payment.CoachingID),
		zap.String("member_id", payment.MemberID),
		zap.String("record_id", payment.RecordID),
		zap.String("receipt_no", payment.ReceiptNo),
		zap.String("amount", payment.Amount.StringFixed(2)),
	)
	return payment, updated, nil
}

// RecordRefund returns at most the unrefunded part of a payment and reduces
// the record's paid amount.
func (s *Service) RecordRefund(ctx context.Context, req RefundRequest) (fees.Refund, fees.FeeRecord, error) {
	if !req.Amount.IsPositive() {
		return fees.Refund{}, fees.FeeRecord{}, fees.Invalid("amount", "must be positive")
	}
	if req.CoachingID == "" {
		return fees.Refund{}, fees.FeeRecord{}, fees.Invalid("coachingId", "required")
	}
	amount := fees.RoundMoney(req.Amount)
	payment, err := s.store.GetPayment(ctx, req.CoachingID, req.PaymentID)
	if err != nil {
		return fees.Refund{}, fees.FeeRecord{}, err
	}
	if payment == nil {
		return fees.Refund{}, fees.FeeRecord{}, fees.NotFound("payment", req.PaymentID)
	}
	mode := req.Mode
	if mode == "" {
		mode = payment.Mode
	}
	if !mode.Valid() {
		return fees.Refund{}, fees.FeeRecord{}, fees.Invalid("mode", "unknown payment mode "+string(mode))
	}

	var refund fees.Refund
	var updated fees.FeeRecord
	err = s.withRecord(ctx, req.CoachingID, payment.RecordID, func(record fees.FeeRecord) error {
		if record.Status == fees.RecordWaived {
			return fees.Conflict("record %s is waived", record.ID)
		}
		previous, err := s.store.ListPaymentRefunds(ctx, req.CoachingID, payment.ID)
		if err != nil {
			return err
		}
		refunded := decimal.Zero
		for _, r := range previous {
			refunded = refunded.Add(r.Amount)
		}
		if remaining := payment.Amount.Sub(refunded); amount.GreaterThan(remaining) {
			return fees.Invalid("amount", fmt.Sprintf("exceeds the refundable %s", remaining.StringFixed(2)))
		}

		now := s.clock.Now()
		refund = fees.Refund{
			ID:         fees.NewID("rfd"),
			CoachingID: record.CoachingID,
			MemberID:   record.MemberID,
			PaymentID:  payment.ID,
			RecordID:   record.ID,
			Amount:     amount,
			Mode:       mode,
			Reason:     strings.TrimSpace(req.Reason),
			RefundedAt: now,
			RecordedBy: auth.SubjectFromContext(ctx),
			CreatedAt:  now,
		}
		updated = record
		updated.PaidAmount = record.PaidAmount.Sub(amount)
		if updated.PaidAmount.IsNegative() {
			updated.PaidAmount = decimal.Zero
		}
		updated.Status = updated.SettledStatus()
		updated.UpdatedAt = now
		if err := s.store.SaveRecordMutation(ctx, fees.RecordMutation{
			Record:          updated,
			ExpectedVersion: record.Version,
			Refund:          &refund,
		}); err != nil {
			return err
		}
		updated.Version = record.Version + 1

		meta := audit.RefundFields(refund)
		meta["receiptNo"] = audit.String(payment.ReceiptNo)
		s.recorder.Record(ctx, audit.Entry{
			CoachingID: record.CoachingID,
			MemberID:   record.MemberID,
			Event:      audit.EventPaymentRefunded,
			EntityType: audit.EntityRefund,
			EntityID:   refund.ID,
			Before:     audit.RecordFields(record),
			After:      audit.RecordFields(updated),
			Meta:       meta,
		})
		return nil
	})
	if err != nil {
		return fees.Refund{}, fees.FeeRecord{}, err
	}
	metrics.IncPaymentEvent(kindRefund, string(refund.Mode))
	s.logger.Info("refund recorded",
		zap.String("coaching_id", refund.CoachingID),
		zap.String("member_id", refund.MemberID),
		zap.String("record_id", refund.RecordID),
		zap.String("amount", refund.Amount.StringFixed(2)),
	)
	return refund, updated, nil
}

// WaiveRecord writes off the remaining balance of a live record.
func (s *Service) WaiveRecord(ctx context.Context, coachingID, recordID, reason string) (fees.Waiver, fees.FeeRecord, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fees.Waiver{}, fees.FeeRecord{}, fees.Invalid("reason", "required")
	}
	var waiver fees.Waiver
	var updated fees.FeeRecord
	err := s.withRecord(ctx, coachingID, recordID, func(record fees.FeeRecord) error {
		if !record.Status.Live() {
			return fees.Conflict("record %s is %s", record.ID, record.Status)
		}
		balance := record.Balance()
		if !balance.IsPositive() {
			return fees.Conflict("record %s has no balance to waive", record.ID)
		}
		now := s.clock.Now()
		actor := auth.SubjectFromContext(ctx)
		if actor == "" {
			actor = fees.SystemActor
		}
		waiver = fees.Waiver{
			ID:           fees.NewID("wv"),
			CoachingID:   record.CoachingID,
			MemberID:     record.MemberID,
			RecordID:     record.ID,
			WaivedAmount: balance,
			Reason:       reason,
			Actor:        actor,
			WaivedAt:     now,
			CreatedAt:    now,
		}
		updated = record
		updated.WaivedAmount = record.WaivedAmount.Add(balance)
		updated.Status = fees.RecordWaived
		updated.UpdatedAt = now
		if err := s.store.SaveRecordMutation(ctx, fees.RecordMutation{
			Record:          updated,
			ExpectedVersion: record.Version,
			Waiver:          &waiver,
		}); err != nil {
			return err
		}
		updated.Version = record.Version + 1

		s.recorder.Record(ctx, audit.Entry{
			CoachingID: record.CoachingID,
			MemberID:   record.MemberID,
			Event:      audit.EventFeeWaived,
			EntityType: audit.EntityFeeRecord,
			EntityID:   record.ID,
			Before:     audit.RecordFields(record),
			After:      audit.RecordFields(updated),
			Meta:       audit.WaiverFields(waiver),
		})
		return nil
	})
	if err != nil {
		return fees.Waiver{}, fees.FeeRecord{}, err
	}
	metrics.IncPaymentEvent(kindWaiver, "")
	metrics.AddWaivedAmount(waiver.WaivedAmount.InexactFloat64())
	return waiver, updated, nil
}

// withRecord runs fn on the freshly loaded record under its member's lock.
func (s *Service) withRecord(ctx context.Context, coachingID, recordID string, fn func(fees.FeeRecord) error) error {
	if coachingID == "" {
		return fees.Invalid("coachingId", "required")
	}
	if recordID == "" {
		return fees.Invalid("recordId", "required")
	}
	probe, err := s.store.GetRecord(ctx, coachingID, recordID)
	if err != nil {
		return err
	}
	if probe == nil {
		return fees.NotFound("fee record", recordID)
	}
	unlock, err := s.locker.Lock(ctx, locks.MemberKey(coachingID, probe.MemberID))
	if err != nil {
		return err
	}
	defer unlock()
	record, err := s.store.GetRecord(ctx, coachingID, recordID)
	if err != nil {
		return err
	}
	if record == nil {
		return fees.NotFound("fee record", recordID)
	}
	return fn(*record)
}

func (s *Service) publish(ctx context.Context, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("publish event failed", zap.String("event", fmt.Sprintf("%T", event)), zap.Error(err))
	}
}
