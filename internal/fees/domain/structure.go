package fees

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BillingCycle is how often a structure bills.
type BillingCycle string

const (
	CycleOnce       BillingCycle = "ONCE"
	CycleMonthly    BillingCycle = "MONTHLY"
	CycleQuarterly  BillingCycle = "QUARTERLY"
	CycleHalfYearly BillingCycle = "HALF_YEARLY"
	CycleYearly     BillingCycle = "YEARLY"
)

// Valid reports whether the cycle is known.
func (c BillingCycle) Valid() bool {
	switch c {
	case CycleOnce, CycleMonthly, CycleQuarterly, CycleHalfYearly, CycleYearly:
		return true
	}
	return false
}

// TaxType selects the GST treatment.
type TaxType string

const (
	TaxNone         TaxType = "NONE"
	TaxGSTInclusive TaxType = "GST_INCLUSIVE"
	TaxGSTExclusive TaxType = "GST_EXCLUSIVE"
)

// DefaultConcern is the fee concern used when a structure does not name one.
const DefaultConcern = "TUITION"

// NormalizeConcern upper-cases a concern, defaulting to TUITION.
func NormalizeConcern(concern string) string {
	concern = strings.ToUpper(strings.TrimSpace(concern))
	if concern == "" {
		return DefaultConcern
	}
	return concern
}

// TaxConfig is the tax configuration of a structure.
type TaxConfig struct {
	Type       TaxType         `json:"type"`
	Rate       decimal.Decimal `json:"rate"`
	SupplyType string          `json:"supplyType,omitempty"`
	SACCode    string          `json:"sacCode,omitempty"`
	HSNCode    string          `json:"hsnCode,omitempty"`
	CessRate   decimal.Decimal `json:"cessRate"`
}

// EffectiveRate is the GST rate plus cess, in percent.
func (t TaxConfig) EffectiveRate() decimal.Decimal {
	if t.Type == "" || t.Type == TaxNone {
		return decimal.Zero
	}
	return t.Rate.Add(t.CessRate)
}

// LineItem is one labelled component of a structure amount.
type LineItem struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// Installment is a fixed installment slot.
type Installment struct {
	Label  string          `json:"label"`
	Amount decimal.Decimal `json:"amount"`
}

// InstallmentPolicy controls how a one-time fee may be split.
type InstallmentPolicy struct {
	Allowed  bool          `json:"allowed"`
	MaxCount int           `json:"maxCount"`
	Fixed    []Installment `json:"fixed,omitempty"`
}

// FeeStructure is a reusable fee template.
type FeeStructure struct {
	ID              string
	CoachingID      string
	Name            string
	Description     string
	Concern         string
	Amount          decimal.Decimal
	BillingCycle    BillingCycle
	LateFinePerDay  decimal.Decimal
	Tax             TaxConfig
	LineItems       []LineItem
	Installments    InstallmentPolicy
	IsActive        bool
	AssignmentCount int
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Normalize fills defaults and trims text fields.
func (s *FeeStructure) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Description = strings.TrimSpace(s.Description)
	s.Concern = NormalizeConcern(s.Concern)
	if s.Tax.Type == "" {
		s.Tax.Type = TaxNone
	}
	if s.BillingCycle == "" {
		s.BillingCycle = CycleMonthly
	}
}

// Validate checks structure invariants.
func (s FeeStructure) Validate() error {
	if s.CoachingID == "" {
		return Invalid("coachingId", "required")
	}
	if s.Name == "" {
		return Invalid("name", "required")
	}
	if !s.Amount.IsPositive() {
		return Invalid("amount", "must be positive")
	}
	if !s.BillingCycle.Valid() {
		return Invalid("billingCycle", "unknown cycle "+string(s.BillingCycle))
	}
	if s.LateFinePerDay.IsNegative() {
		return Invalid("lateFinePerDay", "must not be negative")
	}
	switch s.Tax.Type {
	case TaxNone:
	case TaxGSTInclusive, TaxGSTExclusive:
		if s.Tax.Rate.IsNegative() || s.Tax.Rate.GreaterThan(hundred) {
			return Invalid("tax.rate", "must be between 0 and 100")
		}
		if s.Tax.CessRate.IsNegative() {
			return Invalid("tax.cessRate", "must not be negative")
		}
	default:
		return Invalid("tax.type", "unknown tax type "+string(s.Tax.Type))
	}
	for _, item := range s.LineItems {
		if strings.TrimSpace(item.Label) == "" {
			return Invalid("lineItems", "line item label required")
		}
		if item.Amount.IsNegative() {
			return Invalid("lineItems", "line item "+item.Label+" is negative")
		}
	}
	if len(s.LineItems) > 0 {
		sum := decimal.Zero
		for _, item := range s.LineItems {
			sum = sum.Add(item.Amount)
		}
		if !sum.Equal(s.Amount) {
			return Invalid("lineItems", "line items must add up to the amount")
		}
	}
	if s.Installments.Allowed {
		if s.BillingCycle != CycleOnce {
			return Invalid("installments", "only one-time fees may be split")
		}
		if s.Installments.MaxCount < 2 {
			return Invalid("installments.maxCount", "must be at least 2")
		}
		if n := len(s.Installments.Fixed); n > 0 {
			if n > s.Installments.MaxCount {
				return Invalid("installments.fixed", "more fixed installments than maxCount")
			}
			sum := decimal.Zero
			for _, inst := range s.Installments.Fixed {
				if !inst.Amount.IsPositive() {
					return Invalid("installments.fixed", "installment amounts must be positive")
				}
				sum = sum.Add(inst.Amount)
			}
			if !sum.Equal(s.Amount) {
				return Invalid("installments.fixed", "installments must add up to the amount")
			}
		}
	} else if len(s.Installments.Fixed) > 0 {
		return Invalid("installments.fixed", "installments are not allowed")
	}
	return nil
}
