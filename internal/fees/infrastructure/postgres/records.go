package postgres

import (
	"context"
	"database/sql"
	"errors"

	fees "coaching-fees/internal/fees/domain"
)

const recordColumns = `id, coaching_id, member_id, assignment_id, title, period_start, due_date, base_amount,
	discount_amount, scholarship_amount, tax_amount, credit_amount, final_amount, paid_amount, waived_amount,
	status, version, created_at, updated_at`

// GetRecord loads a record.
func (s *Store) GetRecord(ctx context.Context, coachingID, id string) (*fees.FeeRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("fees store: nil db")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT `+recordColumns+`
FROM fee_records
WHERE coaching_id = $1 AND id = $2`, coachingID, id)
	return scanRecord(row)
}

// ListAssignmentRecords lists an assignment's records in creation order.
func (s *Store) ListAssignmentRecords(ctx context.Context, coachingID, assignmentID string) ([]fees.FeeRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("fees store: nil db")
	}
	return listRecords(ctx, s.db, `
SELECT `+recordColumns+`
FROM fee_records
WHERE coaching_id = $1 AND assignment_id = $2
ORDER BY seq ASC`, coachingID, assignmentID)
}

// LoadHistory returns every event of a member in creation order.
func (s *Store) LoadHistory(ctx context.Context, coachingID, memberID string) (fees.History, error) {
	if s == nil || s.db == nil {
		return fees.History{}, errors.New("fees store: nil db")
	}
	var history fees.History
	// One snapshot across the four tables.
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return history, err
	}
	defer func() { _ = tx.Rollback() }()

	if history.Records, err = listRecords(ctx, tx, `
SELECT `+recordColumns+`
FROM fee_records
WHERE coaching_id = $1 AND member_id = $2
ORDER BY seq ASC`, coachingID, memberID); err != nil {
		return history, err
	}
	if history.Payments, err = listPayments(ctx, tx, `
SELECT `+paymentColumns+`
FROM fee_payments
WHERE coaching_id = $1 AND member_id = $2
ORDER BY seq ASC`, coachingID, memberID); err != nil {
		return history, err
	}
	if history.Refunds, err = listRefunds(ctx, tx, `
SELECT `+refundColumns+`
FROM fee_refunds
WHERE coaching_id = $1 AND member_id = $2
ORDER BY seq ASC`, coachingID, memberID); err != nil {
		return history, err
	}
	if history.Waivers, err = listWaivers(ctx, tx, coachingID, memberID); err != nil {
		return history, err
	}
	return history, tx.Commit()
}

// SaveRecordMutation updates a record and appends its causing event.
func (s *Store) SaveRecordMutation(ctx context.Context, mutation fees.RecordMutation) error {
	if s == nil || s.db == nil {
		return errors.New("fees store: nil db")
	}
	record := mutation.Record
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE fee_records
SET paid_amount = $1, waived_amount = $2, status = $3, version = version + 1, updated_at = $4
WHERE coaching_id = $5 AND id = $6 AND version = $7`,
			record.PaidAmount, record.WaivedAmount, string(record.Status), record.UpdatedAt,
			record.CoachingID, record.ID, mutation.ExpectedVersion)
		if err != nil {
			return err
		}
		if err := checkAffected(res, func() error {
			return fees.Conflict("record %s was modified concurrently", record.ID)
		}); err != nil {
			return err
		}
		if p := mutation.Payment; p != nil {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO fee_payments (
	id, coaching_id, member_id, record_id, amount, mode, transaction_ref, receipt_no, paid_at, recorded_by, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
				p.ID, p.CoachingID, p.MemberID, p.RecordID, p.Amount, string(p.Mode), p.TransactionRef,
				p.ReceiptNo, p.PaidAt, p.RecordedBy, p.CreatedAt); err != nil {
				return err
			}
		}
		if r := mutation.Refund; r != nil {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO fee_refunds (
	id, coaching_id, member_id, payment_id, record_id, amount, mode, reason, refunded_at, recorded_by, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
				r.ID, r.CoachingID, r.MemberID, r.PaymentID, r.RecordID, r.Amount, string(r.Mode), r.Reason,
				r.RefundedAt, r.RecordedBy, r.CreatedAt); err != nil {
				return err
			}
		}
		if w := mutation.Waiver; w != nil {
			if err := insertWaiver(ctx, tx, *w); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetPayment loads a payment.
func (s *Store) GetPayment(ctx context.Context, coachingID, id string) (*fees.Payment, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("fees store: nil db")
	}
	payments, err := listPayments(ctx, s.db, `
SELECT `+paymentColumns+`
FROM fee_payments
WHERE coaching_id = $1 AND id = $2`, coachingID, id)
	if err != nil || len(payments) == 0 {
		return nil, err
	}
	return &payments[0], nil
}

// ListPaymentRefunds lists refunds of a payment.
func (s *Store) ListPaymentRefunds(ctx context.Context, coachingID, paymentID string) ([]fees.Refund, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("fees store: nil db")
	}
	return listRefunds(ctx, s.db, `
SELECT `+refundColumns+`
FROM fee_refunds
WHERE coaching_id = $1 AND payment_id = $2
ORDER BY seq ASC`, coachingID, paymentID)
}

func insertRecord(ctx context.Context, q querier, r fees.FeeRecord) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO fee_records (
	id, coaching_id, member_id, assignment_id, title, period_start, due_date, base_amount, discount_amount,
	scholarship_amount, tax_amount, credit_amount, final_amount, paid_amount, waived_amount, status, version,
	created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
)`,
		r.ID, r.CoachingID, r.MemberID, r.AssignmentID, r.Title, r.PeriodStart, r.DueDate, r.BaseAmount,
		r.DiscountAmount, r.ScholarshipAmount, r.TaxAmount, r.CreditAmount, r.FinalAmount, r.PaidAmount,
		r.WaivedAmount, string(r.Status), r.Version, r.CreatedAt, r.UpdatedAt,
	)
	return err
}

func insertWaiver(ctx context.Context, q querier, w fees.Waiver) error {
	_, err := q.ExecContext(ctx, `
INSERT INTO fee_waivers (
	id, coaching_id, member_id, record_id, waived_amount, reason, actor, waived_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		w.ID, w.CoachingID, w.MemberID, w.RecordID, w.WaivedAmount, w.Reason, w.Actor, w.WaivedAt, w.CreatedAt)
	return err
}

func listRecords(ctx context.Context, q querier, query string, args ...any) ([]fees.FeeRecord, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]fees.FeeRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *record)
	}
	return result, rows.Err()
}

func scanRecord(row rowScanner) (*fees.FeeRecord, error) {
	var (
		r      fees.FeeRecord
		status string
	)
	if err := row.Scan(
		&r.ID,
		&r.CoachingID,
		&r.MemberID,
		&r.AssignmentID,
		&r.Title,
		&r.PeriodStart,
		&r.DueDate,
		&r.BaseAmount,
		&r.DiscountAmount,
		&r.ScholarshipAmount,
		&r.TaxAmount,
		&r.CreditAmount,
		&r.FinalAmount,
		&r.PaidAmount,
		&r.WaivedAmount,
		&status,
		&r.Version,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.Status = fees.RecordStatus(status)
	r.PeriodStart = r.PeriodStart.UTC()
	r.DueDate = r.DueDate.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}
