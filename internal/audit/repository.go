package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const entryColumns = `id, coaching_id, member_id, event, entity_type, entity_id, actor_id, actor_type, actor_role,
	before_data, after_data, meta, note, payload_digest, ip, user_agent, created_at`

// Repository writes and lists audit logs in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = Digest(entry)
	}
	before, err := encodeFields(entry.Before)
	if err != nil {
		return err
	}
	after, err := encodeFields(entry.After)
	if err != nil {
		return err
	}
	meta, err := encodeFields(entry.Meta)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, coaching_id, member_id, event, entity_type, entity_id, actor_id, actor_type, actor_role,
	before_data, after_data, meta, note, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
)`, entry.ID, entry.CoachingID, entry.MemberID, string(entry.Event), entry.EntityType, entry.EntityID,
		entry.ActorID, entry.ActorType, entry.ActorRole, before, after, meta, entry.Note,
		entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	return err
}

// List returns one page of matching entries, newest first, and the total match count.
func (r *Repository) List(ctx context.Context, q Query) ([]Entry, int, error) {
	if r == nil || r.db == nil {
		return nil, 0, errors.New("audit repo: nil db")
	}
	q, err := q.Normalize()
	if err != nil {
		return nil, 0, err
	}
	where, args := buildFilter(q)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []Entry{}, 0, nil
	}

	query := fmt.Sprintf("SELECT %s FROM audit_logs WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		entryColumns, where, len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset())
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := make([]Entry, 0, q.Limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// LatestForMember returns the newest entry of the given events for a member.
func (r *Repository) LatestForMember(ctx context.Context, coachingID, memberID string, events []Event) (*Entry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("audit repo: nil db")
	}
	if coachingID == "" || memberID == "" {
		return nil, errors.New("audit repo: invalid query")
	}
	query := "SELECT " + entryColumns + " FROM audit_logs WHERE coaching_id = $1 AND member_id = $2"
	args := []any{coachingID, memberID}
	if len(events) > 0 {
		placeholders := make([]string, 0, len(events))
		for _, event := range events {
			args = append(args, string(event))
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		query += " AND event IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT 1"
	return scanEntry(r.db.QueryRowContext(ctx, query, args...))
}

func buildFilter(q Query) (string, []any) {
	clauses := []string{"coaching_id = $1"}
	args := []any{q.CoachingID}
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if q.EntityType != "" {
		add("entity_type = $%d", q.EntityType)
	}
	if q.Event != "" {
		add("event = $%d", string(q.Event))
	}
	if q.EntityID != "" {
		add("entity_id = $%d", q.EntityID)
	}
	if q.ActorID != "" {
		add("actor_id = $%d", q.ActorID)
	}
	if q.MemberID != "" {
		add("member_id = $%d", q.MemberID)
	}
	if !q.From.IsZero() {
		add("created_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("created_at < $%d", q.To)
	}
	return strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry               Entry
		event               string
		before, after, meta []byte
	)
	if err := row.Scan(
		&entry.ID,
		&entry.CoachingID,
		&entry.MemberID,
		&event,
		&entry.EntityType,
		&entry.EntityID,
		&entry.ActorID,
		&entry.ActorType,
		&entry.ActorRole,
		&before,
		&after,
		&meta,
		&entry.Note,
		&entry.PayloadDigest,
		&entry.IP,
		&entry.UserAgent,
		&entry.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	entry.Event = Event(event)
	entry.CreatedAt = entry.CreatedAt.UTC()
	var err error
	if entry.Before, err = decodeFields(before); err != nil {
		return nil, err
	}
	if entry.After, err = decodeFields(after); err != nil {
		return nil, err
	}
	if entry.Meta, err = decodeFields(meta); err != nil {
		return nil, err
	}
	return &entry, nil
}

func encodeFields(fields Fields) (sql.NullString, error) {
	if len(fields) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("audit repo: encode fields: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeFields(data []byte) (Fields, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var fields Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("audit repo: decode fields: %w", err)
	}
	return fields, nil
}
