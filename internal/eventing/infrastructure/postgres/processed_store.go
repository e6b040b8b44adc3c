package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ProcessedStore records which consumers already handled an event, so a
// redelivered ReminderRequested does not message the member twice.
type ProcessedStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewProcessedStore(db *sql.DB) *ProcessedStore {
	return &ProcessedStore{db: db, now: time.Now}
}

func (s *ProcessedStore) check(eventID, consumerName string) error {
	if s == nil || s.db == nil {
		return errors.New("processed store: nil db")
	}
	if eventID == "" || consumerName == "" {
		return errors.New("processed store: event id and consumer required")
	}
	return nil
}

func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	if err := s.check(eventID, consumerName); err != nil {
		return false, err
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1 AND consumer_name = $2)`,
		eventID, consumerName).Scan(&exists)
	return exists, err
}

// MarkProcessed is idempotent.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	if err := s.check(eventID, consumerName); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO processed_events (event_id, consumer_name, processed_at)
VALUES ($1, $2, $3)
ON CONFLICT (event_id, consumer_name) DO NOTHING`,
		eventID, consumerName, s.now().UTC())
	return err
}
