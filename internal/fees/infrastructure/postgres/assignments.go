package postgres

import (
	"context"
	"database/sql"
	"errors"

	fees "coaching-fees/internal/fees/domain"
)

const assignmentColumns = `id, coaching_id, member_id, fee_structure_id, concern, custom_amount, discount_amount,
	discount_reason, scholarship_tag, scholarship_amount, installments, start_date, end_date, status,
	credit_applied, credit_remaining, last_billed_period, version, created_by, created_at, updated_at`

// FindActiveAssignment returns the member's ACTIVE assignment for a concern.
func (s *Store) FindActiveAssignment(ctx context.Context, coachingID, memberID, concern string) (*fees.FeeAssignment, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("fees store: nil db")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT `+assignmentColumns+`
FROM fee_assignments
WHERE coaching_id = $1 AND member_id = $2 AND concern = $3 AND status = 'ACTIVE'
LIMIT 1`, coachingID, memberID, concern)
	return scanAssignment(row)
}

// GetAssignment loads an assignment.
func (s *Store) GetAssignment(ctx context.Context, coachingID, id string) (*fees.FeeAssignment, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("fees store: nil db")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT `+assignmentColumns+`
FROM fee_assignments
WHERE coaching_id = $1 AND id = $2`, coachingID, id)
	return scanAssignment(row)
}

// ListMemberAssignments lists a member's assignments, oldest first.
func (s *Store) ListMemberAssignments(ctx context.Context, coachingID, memberID string) ([]fees.FeeAssignment, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("fees store: nil db")
	}
	return s.listAssignments(ctx, `
SELECT `+assignmentColumns+`
FROM fee_assignments
WHERE coaching_id = $1 AND member_id = $2
ORDER BY created_at ASC, id ASC`, coachingID, memberID)
}

// ListBillableAssignments returns every ACTIVE assignment.
func (s *Store) ListBillableAssignments(ctx context.Context) ([]fees.FeeAssignment, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("fees store: nil db")
	}
	return s.listAssignments(ctx, `
SELECT `+assignmentColumns+`
FROM fee_assignments
WHERE status = 'ACTIVE'
ORDER BY created_at ASC, id ASC`)
}

func (s *Store) listAssignments(ctx context.Context, query string, args ...any) ([]fees.FeeAssignment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]fees.FeeAssignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CommitAssignment applies one member-atomic reassignment in a single transaction.
// The superseded assignment and its live records are locked FOR UPDATE and compared with the preview.
func (s *Store) CommitAssignment(ctx context.Context, commit fees.AssignmentCommit) error {
	if s == nil || s.db == nil {
		return errors.New("fees store: nil db")
	}
	next := commit.Assignment
	return s.inTx(ctx, func(tx *sql.Tx) error {
		supersededID := ""
		if old := commit.Superseded; old != nil {
			var (
				version int
				status  string
			)
			err := tx.QueryRowContext(ctx, `
SELECT version, status FROM fee_assignments WHERE coaching_id = $1 AND id = $2 FOR UPDATE`,
				old.CoachingID, old.ID).Scan(&version, &status)
			if errors.Is(err, sql.ErrNoRows) {
				return fees.NotFound("fee assignment", old.ID)
			}
			if err != nil {
				return err
			}
			if version != commit.SupersededVersion || fees.AssignmentStatus(status) != fees.AssignmentActive {
				return fees.Conflict("assignment %s changed since preview", old.ID)
			}
			current, err := lockLiveRecords(ctx, tx, old.ID)
			if err != nil {
				return err
			}
			if err := fees.VerifyLive(old.ID, current, commit.ExpectedLive); err != nil {
				return err
			}
			supersededID = old.ID
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM fee_assignments
	WHERE coaching_id = $1 AND member_id = $2 AND concern = $3 AND status = 'ACTIVE' AND id <> $4
)`, next.CoachingID, next.MemberID, next.Concern, supersededID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return fees.Conflict("member %s already has an active %s assignment", next.MemberID, next.Concern)
		}

		for _, w := range commit.Waivers {
			if _, err := tx.ExecContext(ctx, `
UPDATE fee_records
SET waived_amount = waived_amount + $1, status = 'WAIVED', version = version + 1, updated_at = $2
WHERE id = $3`, w.WaivedAmount, w.WaivedAt, w.RecordID); err != nil {
				return err
			}
			if err := insertWaiver(ctx, tx, w); err != nil {
				return err
			}
		}
		if supersededID != "" {
			if _, err := tx.ExecContext(ctx, `
UPDATE fee_assignments SET status = 'REMOVED', version = version + 1, updated_at = $1 WHERE id = $2`,
				commit.SupersededAt, supersededID); err != nil {
				return err
			}
		}
		if err := insertAssignment(ctx, tx, next); err != nil {
			return err
		}
		for _, record := range commit.Records {
			if err := insertRecord(ctx, tx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateAssignment replaces an assignment when its version matches.
func (s *Store) UpdateAssignment(ctx context.Context, assignment fees.FeeAssignment, expectedVersion int) error {
	if s == nil || s.db == nil {
		return errors.New("fees store: nil db")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return updateAssignment(ctx, tx, assignment, expectedVersion)
	})
}

// AppendRecords stores new cycle records with the advanced assignment.
func (s *Store) AppendRecords(ctx context.Context, assignment fees.FeeAssignment, expectedVersion int, records []fees.FeeRecord) error {
	if s == nil || s.db == nil {
		return errors.New("fees store: nil db")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := updateAssignment(ctx, tx, assignment, expectedVersion); err != nil {
			return err
		}
		for _, record := range records {
			if err := insertRecord(ctx, tx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

func updateAssignment(ctx context.Context, q querier, a fees.FeeAssignment, expectedVersion int) error {
	res, err := q.ExecContext(ctx, `
UPDATE fee_assignments
SET custom_amount = $1, discount_amount = $2, discount_reason = $3, scholarship_tag = $4, scholarship_amount = $5,
	installments = $6, start_date = $7, end_date = $8, status = $9, credit_applied = $10, credit_remaining = $11,
	last_billed_period = $12, version = version + 1, updated_at = $13
WHERE coaching_id = $14 AND id = $15 AND version = $16`,
		a.CustomAmount, a.DiscountAmount, a.DiscountReason, a.ScholarshipTag, a.ScholarshipAmount,
		a.Installments, a.StartDate, nullableTime(a.EndDate), string(a.Status), a.CreditApplied, a.CreditRemaining,
		nullableDate(a.LastBilledPeriod), a.UpdatedAt, a.CoachingID, a.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	return checkAffected(res, func() error {
		var exists bool
		if err := q.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM fee_assignments WHERE coaching_id = $1 AND id = $2)`, a.CoachingID, a.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fees.NotFound("fee assignment", a.ID)
		}
		return fees.Conflict("assignment %s was modified concurrently", a.ID)
	})
}

func insertAssignment(ctx context.Context, q querier, a fees.FeeAssignment) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO fee_assignments (
	id, coaching_id, member_id, fee_structure_id, concern, custom_amount, discount_amount, discount_reason,
	scholarship_tag, scholarship_amount, installments, start_date, end_date, status, credit_applied,
	credit_remaining, last_billed_period, version, created_by, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
)`,
		a.ID, a.CoachingID, a.MemberID, a.FeeStructureID, a.Concern, a.CustomAmount, a.DiscountAmount,
		a.DiscountReason, a.ScholarshipTag, a.ScholarshipAmount, a.Installments, a.StartDate, nullableTime(a.EndDate),
		string(a.Status), a.CreditApplied, a.CreditRemaining, nullableDate(a.LastBilledPeriod), a.Version,
		a.CreatedBy, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func lockLiveRecords(ctx context.Context, tx *sql.Tx, assignmentID string) ([]fees.SettledRecord, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT id, final_amount, paid_amount, waived_amount
FROM fee_records
WHERE assignment_id = $1 AND status IN ('PENDING', 'PARTIALLY_PAID')
ORDER BY seq
FOR UPDATE`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []fees.SettledRecord
	for rows.Next() {
		var r fees.SettledRecord
		if err := rows.Scan(&r.RecordID, &r.FinalAmount, &r.PaidAmount, &r.WaivedAmount); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanAssignment(row rowScanner) (*fees.FeeAssignment, error) {
	var (
		a          fees.FeeAssignment
		status     string
		endDate    sql.NullTime
		lastBilled sql.NullTime
	)
	if err := row.Scan(
		&a.ID,
		&a.CoachingID,
		&a.MemberID,
		&a.FeeStructureID,
		&a.Concern,
		&a.CustomAmount,
		&a.DiscountAmount,
		&a.DiscountReason,
		&a.ScholarshipTag,
		&a.ScholarshipAmount,
		&a.Installments,
		&a.StartDate,
		&endDate,
		&status,
		&a.CreditApplied,
		&a.CreditRemaining,
		&lastBilled,
		&a.Version,
		&a.CreatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.Status = fees.AssignmentStatus(status)
	a.StartDate = a.StartDate.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if endDate.Valid {
		end := endDate.Time.UTC()
		a.EndDate = &end
	}
	if lastBilled.Valid {
		a.LastBilledPeriod = lastBilled.Time.UTC()
	}
	return &a, nil
}
