package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coaching-fees/internal/eventing"
)

// OutboxStore keeps fee events in event_outbox until the dispatcher delivers
// them. Rows carry the coaching and member so operators can trace stuck
// reminders per member.
type OutboxStore struct {
	db *sql.DB
}

func NewOutboxStore(db *sql.DB) *OutboxStore {
	return &OutboxStore{db: db}
}

var errNilOutboxDB = errors.New("outbox store: nil db")

// Insert stores env as pending and returns the row id.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	if s == nil || s.db == nil {
		return "", errNilOutboxDB
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	id := eventing.NewEventID()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO event_outbox (id, event_id, event_type, coaching_id, member_id, payload, status, attempts)
VALUES ($1, $2, $3, $4, $5, $6, 'pending', 0)`,
		id, env.EventID, env.EventType, env.TenantID, env.MemberID, payload)
	if err != nil {
		return "", fmt.Errorf("outbox store: insert %s: %w", env.EventType, err)
	}
	return id, nil
}

// ListPending returns up to limit pending rows, oldest first.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNilOutboxDB
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, attempts, payload
FROM event_outbox
WHERE status = 'pending'
ORDER BY created_at, id
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []eventing.OutboxRecord
	for rows.Next() {
		var (
			rec     eventing.OutboxRecord
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Attempts, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &rec.Envelope); err != nil {
			return nil, fmt.Errorf("outbox store: decode %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE event_outbox SET status = 'sent', sent_at = $2 WHERE id = $1`, id, time.Now().UTC())
}

// MarkRetry counts a failed attempt and leaves the row pending.
func (s *OutboxStore) MarkRetry(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE event_outbox SET attempts = attempts + 1 WHERE id = $1 AND status = 'pending'`, id)
}

// MarkFailed counts the last attempt and parks the row.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE event_outbox SET status = 'failed', attempts = attempts + 1 WHERE id = $1`, id)
}

// PendingCount returns the number of undelivered rows.
func (s *OutboxStore) PendingCount(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, errNilOutboxDB
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_outbox WHERE status = 'pending'`).Scan(&n)
	return n, err
}

func (s *OutboxStore) exec(ctx context.Context, query string, args ...any) error {
	if s == nil || s.db == nil {
		return errNilOutboxDB
	}
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}
