package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"coaching-fees/internal/eventing"
)

// DLQStore keeps events the dispatcher gave up on. A repeated failure of the
// same event bumps attempts and keeps the first_seen_at of the original.
type DLQStore struct {
	db *sql.DB
}

func NewDLQStore(db *sql.DB) *DLQStore {
	return &DLQStore{db: db}
}

func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("dlq store: nil db")
	}
	if env.EventID == "" {
		return errors.New("dlq store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO dead_letter_events (event_id, event_type, coaching_id, payload, error, first_seen_at, last_seen_at, attempts)
VALUES ($1, $2, $3, $4, $5, now(), now(), 1)
ON CONFLICT (event_id) DO UPDATE SET
	payload = EXCLUDED.payload,
	error = EXCLUDED.error,
	last_seen_at = EXCLUDED.last_seen_at,
	attempts = dead_letter_events.attempts + 1`,
		env.EventID, env.EventType, env.TenantID, payload, message)
	return err
}

// List returns the latest dead letters first. An empty coachingID lists all coachings.
func (s *DLQStore) List(ctx context.Context, coachingID string, limit int) ([]eventing.DeadLetter, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("dlq store: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT payload, error, last_seen_at
FROM dead_letter_events
WHERE $1 = '' OR coaching_id = $1
ORDER BY last_seen_at DESC
LIMIT $2`, coachingID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var letters []eventing.DeadLetter
	for rows.Next() {
		var (
			letter  eventing.DeadLetter
			payload []byte
		)
		if err := rows.Scan(&payload, &letter.Error, &letter.At); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &letter.Envelope); err != nil {
			return nil, err
		}
		letters = append(letters, letter)
	}
	return letters, rows.Err()
}
