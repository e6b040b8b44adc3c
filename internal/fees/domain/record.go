package fees

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordStatus is the settlement state of a record.
type RecordStatus string

const (
	RecordPending       RecordStatus = "PENDING"
	RecordPartiallyPaid RecordStatus = "PARTIALLY_PAID"
	RecordPaid          RecordStatus = "PAID"
	RecordOverdue       RecordStatus = "OVERDUE"
	RecordWaived        RecordStatus = "WAIVED"
)

// Live reports whether the status still carries a collectable balance.
func (s RecordStatus) Live() bool {
	switch s {
	case RecordPending, RecordPartiallyPaid, RecordOverdue:
		return true
	}
	return false
}

// FeeRecord is one billable instance of an assignment.
type FeeRecord struct {
	ID                string
	CoachingID        string
	MemberID          string
	AssignmentID      string
	Title             string
	PeriodStart       time.Time
	DueDate           time.Time
	BaseAmount        decimal.Decimal
	DiscountAmount    decimal.Decimal
	ScholarshipAmount decimal.Decimal
	TaxAmount         decimal.Decimal
	CreditAmount      decimal.Decimal
	FinalAmount       decimal.Decimal
	PaidAmount        decimal.Decimal
	WaivedAmount      decimal.Decimal
	Status            RecordStatus
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Balance is the amount still collectable; waived records have none.
func (r FeeRecord) Balance() decimal.Decimal {
	if r.Status == RecordWaived {
		return decimal.Zero
	}
	balance := r.FinalAmount.Sub(r.PaidAmount).Sub(r.WaivedAmount)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// SettledStatus derives the stored status from the paid amount.
func (r FeeRecord) SettledStatus() RecordStatus {
	if r.Status == RecordWaived {
		return RecordWaived
	}
	switch {
	case r.PaidAmount.GreaterThanOrEqual(r.FinalAmount):
		return RecordPaid
	case r.PaidAmount.IsPositive():
		return RecordPartiallyPaid
	default:
		return RecordPending
	}
}

// EffectiveStatus reports OVERDUE for unpaid records past their due date.
func (r FeeRecord) EffectiveStatus(now time.Time) RecordStatus {
	if r.Status == RecordPending && StartOfDay(now).After(StartOfDay(r.DueDate)) {
		return RecordOverdue
	}
	return r.Status
}

// DaysOverdue is the number of whole days a live record is past due.
func (r FeeRecord) DaysOverdue(now time.Time) int {
	if r.Status != RecordPending && r.Status != RecordPartiallyPaid && r.Status != RecordOverdue {
		return 0
	}
	due := StartOfDay(r.DueDate)
	today := StartOfDay(now)
	if !today.After(due) {
		return 0
	}
	return int(today.Sub(due).Hours() / 24)
}

// StartOfDay is midnight UTC of t's UTC calendar day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
