package fees

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AssignmentStatus is the lifecycle state of an assignment.
type AssignmentStatus string

const (
	AssignmentActive  AssignmentStatus = "ACTIVE"
	AssignmentPaused  AssignmentStatus = "PAUSED"
	AssignmentRemoved AssignmentStatus = "REMOVED"
)

// Valid reports whether the status is known.
func (s AssignmentStatus) Valid() bool {
	switch s {
	case AssignmentActive, AssignmentPaused, AssignmentRemoved:
		return true
	}
	return false
}

// FeeAssignment binds a structure to a member with optional overrides.
type FeeAssignment struct {
	ID                string
	CoachingID        string
	MemberID          string
	FeeStructureID    string
	Concern           string
	CustomAmount      decimal.NullDecimal
	DiscountAmount    decimal.Decimal
	DiscountReason    string
	ScholarshipTag    string
	ScholarshipAmount decimal.Decimal
	Installments      int
	StartDate         time.Time
	EndDate           *time.Time
	Status            AssignmentStatus
	CreditApplied     decimal.Decimal
	CreditRemaining   decimal.Decimal
	LastBilledPeriod  time.Time
	Version           int
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EffectiveAmount is the custom amount when set, else the structure amount.
func (a FeeAssignment) EffectiveAmount(structure FeeStructure) decimal.Decimal {
	if a.CustomAmount.Valid {
		return a.CustomAmount.Decimal
	}
	return structure.Amount
}

// Clone returns a deep copy.
func (a FeeAssignment) Clone() FeeAssignment {
	out := a
	if a.EndDate != nil {
		end := *a.EndDate
		out.EndDate = &end
	}
	return out
}

// PricingOverrides are the per-member settings applied on assignment.
type PricingOverrides struct {
	CustomAmount      decimal.NullDecimal
	DiscountAmount    decimal.Decimal
	DiscountReason    string
	ScholarshipTag    string
	ScholarshipAmount decimal.Decimal
	StartDate         time.Time
	EndDate           *time.Time
	Installments      int
	// ApplyCredit carries a superseded assignment's collected amount onto the new one.
	// Nil defers to the configured default.
	ApplyCredit *bool
}

// NormalizeDates pins the start and end dates to midnight UTC.
func (o *PricingOverrides) NormalizeDates() {
	if !o.StartDate.IsZero() {
		o.StartDate = StartOfDay(o.StartDate)
	}
	if o.EndDate != nil {
		end := StartOfDay(*o.EndDate)
		o.EndDate = &end
	}
}

// Validate checks overrides against a structure.
func (o PricingOverrides) Validate(structure FeeStructure) error {
	if o.CustomAmount.Valid && !o.CustomAmount.Decimal.IsPositive() {
		return Invalid("customAmount", "must be positive")
	}
	if o.DiscountAmount.IsNegative() {
		return Invalid("discountAmount", "must not be negative")
	}
	if o.ScholarshipAmount.IsNegative() {
		return Invalid("scholarshipAmount", "must not be negative")
	}
	if o.ScholarshipAmount.IsPositive() && strings.TrimSpace(o.ScholarshipTag) == "" {
		return Invalid("scholarshipTag", "required with a scholarship amount")
	}
	if o.DiscountAmount.IsPositive() && strings.TrimSpace(o.DiscountReason) == "" {
		return Invalid("discountReason", "required with a discount")
	}
	if o.StartDate.IsZero() {
		return Invalid("startDate", "required")
	}
	if o.EndDate != nil && o.EndDate.Before(o.StartDate) {
		return Invalid("endDate", "must not be before startDate")
	}
	if o.Installments < 0 {
		return Invalid("installments", "must not be negative")
	}
	if o.Installments > 1 {
		if !structure.Installments.Allowed {
			return Invalid("installments", "structure does not allow installments")
		}
		if o.Installments > structure.Installments.MaxCount {
			return Invalid("installments", "exceeds the structure maximum")
		}
		if n := len(structure.Installments.Fixed); n > 0 && o.Installments != n {
			return Invalid("installments", "structure defines a fixed installment plan")
		}
	}
	base := structure.Amount
	if o.CustomAmount.Valid {
		base = o.CustomAmount.Decimal
	}
	if base.LessThan(o.DiscountAmount.Add(o.ScholarshipAmount)) {
		return Invalid("discountAmount", "discount and scholarship exceed the amount")
	}
	return nil
}
