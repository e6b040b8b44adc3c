package reminders

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"coaching-fees/internal/audit"
	"coaching-fees/internal/auth"
	"coaching-fees/internal/fees/application/events"
	fees "coaching-fees/internal/fees/domain"
)

// EventPublisher emits domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Store is what a reminder request reads.
type Store interface {
	fees.RecordReader
	fees.MemberDirectory
}

// Service queues payment reminders for outstanding records. Delivery happens
// asynchronously in the Notifier.
type Service struct {
	store     Store
	publisher EventPublisher
	recorder  *audit.Recorder
	clock     fees.Clock
	logger    *zap.Logger
}

// NewService constructs the reminder service.
func NewService(store Store, publisher EventPublisher, recorder *audit.Recorder, clock fees.Clock, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("reminder service: nil store")
	}
	if publisher == nil {
		return nil, errors.New("reminder service: nil publisher")
	}
	if clock == nil {
		clock = fees.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, publisher: publisher, recorder: recorder, clock: clock, logger: logger}, nil
}

// SendReminder queues a reminder for a record that still has a balance.
func (s *Service) SendReminder(ctx context.Context, coachingID, recordID string) (events.ReminderRequested, error) {
	if coachingID == "" {
		return events.ReminderRequested{}, fees.Invalid("coachingId", "required")
	}
	record, err := s.store.GetRecord(ctx, coachingID, recordID)
	if err != nil {
		return events.ReminderRequested{}, err
	}
	if record == nil {
		return events.ReminderRequested{}, fees.NotFound("fee record", recordID)
	}
	balance := record.Balance()
	if !record.Status.Live() || !balance.IsPositive() {
		return events.ReminderRequested{}, fees.Conflict("record %s has nothing outstanding", recordID)
	}
	member, err := s.store.GetMember(ctx, coachingID, record.MemberID)
	if err != nil {
		return events.ReminderRequested{}, err
	}
	if member == nil {
		return events.ReminderRequested{}, fees.NotFound("member", record.MemberID)
	}

	now := s.clock.Now()
	event := events.ReminderRequested{
		CoachingID:  coachingID,
		MemberID:    member.ID,
		MemberName:  member.Name,
		Phone:       member.Phone,
		RecordID:    record.ID,
		Title:       record.Title,
		Balance:     balance,
		DueDate:     record.DueDate,
		DaysOverdue: record.DaysOverdue(now),
		RequestedBy: auth.SubjectFromContext(ctx),
		OccurredAt:  now,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		return events.ReminderRequested{}, err
	}
	s.recorder.Record(ctx, audit.Entry{
		CoachingID: coachingID,
		MemberID:   member.ID,
		Event:      audit.EventReminderSent,
		EntityType: audit.EntityFeeRecord,
		EntityID:   record.ID,
		After: audit.Fields{
			"title":       audit.String(record.Title),
			"balance":     audit.Number(balance),
			"dueDate":     audit.Date(record.DueDate),
			"daysOverdue": audit.Int(event.DaysOverdue),
		},
	})
	s.logger.Info("reminder queued",
		zap.String("coaching_id", coachingID),
		zap.String("member_id", member.ID),
		zap.String("record_id", record.ID),
	)
	return event, nil
}
