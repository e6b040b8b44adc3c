package postgres

import (
	"context"

	fees "coaching-fees/internal/fees/domain"
)

const paymentColumns = `id, coaching_id, member_id, record_id, amount, mode, transaction_ref, receipt_no, paid_at,
	recorded_by, created_at`

const refundColumns = `id, coaching_id, member_id, payment_id, record_id, amount, mode, reason, refunded_at,
	recorded_by, created_at`

func listPayments(ctx context.Context, q querier, query string, args ...any) ([]fees.Payment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]fees.Payment, 0)
	for rows.Next() {
		var (
			p    fees.Payment
			mode string
		)
		if err := rows.Scan(&p.ID, &p.CoachingID, &p.MemberID, &p.RecordID, &p.Amount, &mode, &p.TransactionRef,
			&p.ReceiptNo, &p.PaidAt, &p.RecordedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Mode = fees.PaymentMode(mode)
		p.PaidAt = p.PaidAt.UTC()
		p.CreatedAt = p.CreatedAt.UTC()
		result = append(result, p)
	}
	return result, rows.Err()
}

func listRefunds(ctx context.Context, q querier, query string, args ...any) ([]fees.Refund, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]fees.Refund, 0)
	for rows.Next() {
		var (
			r    fees.Refund
			mode string
		)
		if err := rows.Scan(&r.ID, &r.CoachingID, &r.MemberID, &r.PaymentID, &r.RecordID, &r.Amount, &mode,
			&r.Reason, &r.RefundedAt, &r.RecordedBy, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Mode = fees.PaymentMode(mode)
		r.RefundedAt = r.RefundedAt.UTC()
		r.CreatedAt = r.CreatedAt.UTC()
		result = append(result, r)
	}
	return result, rows.Err()
}

func listWaivers(ctx context.Context, q querier, coachingID, memberID string) ([]fees.Waiver, error) {
	rows, err := q.QueryContext(ctx, `
SELECT id, coaching_id, member_id, record_id, waived_amount, reason, actor, waived_at, created_at
FROM fee_waivers
WHERE coaching_id = $1 AND member_id = $2
ORDER BY seq ASC`, coachingID, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := make([]fees.Waiver, 0)
	for rows.Next() {
		var w fees.Waiver
		if err := rows.Scan(&w.ID, &w.CoachingID, &w.MemberID, &w.RecordID, &w.WaivedAmount, &w.Reason, &w.Actor,
			&w.WaivedAt, &w.CreatedAt); err != nil {
			return nil, err
		}
		w.WaivedAt = w.WaivedAt.UTC()
		w.CreatedAt = w.CreatedAt.UTC()
		result = append(result, w)
	}
	return result, rows.Err()
}
