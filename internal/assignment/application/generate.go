package application

import (
	"time"

	"github.com/shopspring/decimal"

	fees "coaching-fees/internal/fees/domain"
)

// billing builds records for one assignment. It advances the assignment's
// LastBilledPeriod and CreditRemaining as records are produced.
type billing struct {
	structure  fees.FeeStructure
	assignment *fees.FeeAssignment
	now        time.Time
}

// initial returns the records billed when the assignment starts: every
// installment of a one-time fee, or the first period of a recurring one.
func (b billing) initial() ([]fees.FeeRecord, error) {
	if b.structure.BillingCycle.Recurring() {
		record, err := b.period(b.assignment.StartDate)
		if err != nil {
			return nil, err
		}
		return []fees.FeeRecord{record}, nil
	}
	return b.installments()
}

// due returns the records of every unbilled period that has started by now,
// capped at limit.
func (b billing) due(limit int) ([]fees.FeeRecord, error) {
	cycle := b.structure.BillingCycle
	if !cycle.Recurring() || b.assignment.Status != fees.AssignmentActive {
		return nil, nil
	}
	var out []fees.FeeRecord
	for k := periodIndexAt(cycle, b.assignment.StartDate, b.assignment.LastBilledPeriod) + 1; len(out) < limit; k++ {
		start := fees.PeriodStart(cycle, b.assignment.StartDate, k)
		if start.After(b.now) {
			break
		}
		if end := b.assignment.EndDate; end != nil && start.After(*end) {
			break
		}
		record, err := b.period(start)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

func (b billing) period(start time.Time) (fees.FeeRecord, error) {
	a := b.assignment
	charge, err := fees.ComputeCharge(a.EffectiveAmount(b.structure), a.DiscountAmount, a.ScholarshipAmount, b.structure.Tax)
	if err != nil {
		return fees.FeeRecord{}, err
	}
	record := b.record(
		fees.PeriodTitle(b.structure.Name, b.structure.BillingCycle, start),
		start, start,
		charge.Base, charge.Discount, charge.Scholarship, charge.Tax, charge.Final,
	)
	a.LastBilledPeriod = start
	return record, nil
}

// installments splits a one-time charge. Each component is allocated by the
// installment weights and the base is derived so every record satisfies
// final = base - discount - scholarship + tax.
func (b billing) installments() ([]fees.FeeRecord, error) {
	a := b.assignment
	charge, err := fees.ComputeCharge(a.EffectiveAmount(b.structure), a.DiscountAmount, a.ScholarshipAmount, b.structure.Tax)
	if err != nil {
		return nil, err
	}
	n := a.Installments
	if n < 1 {
		n = 1
	}
	weights := make([]decimal.Decimal, n)
	labels := make([]string, n)
	fixed := b.structure.Installments.Fixed
	for i := range weights {
		weights[i] = decimal.NewFromInt(1)
		if n > 1 && len(fixed) == n {
			weights[i] = fixed[i].Amount
			labels[i] = fixed[i].Label
		}
	}

	finals := fees.Allocate(charge.Final, weights)
	discounts := fees.Allocate(charge.Discount, weights)
	scholarships := fees.Allocate(charge.Scholarship, weights)
	taxes := fees.Allocate(charge.Tax, weights)

	records := make([]fees.FeeRecord, 0, n)
	for i := 0; i < n; i++ {
		base := finals[i].Add(discounts[i]).Add(scholarships[i])
		if b.structure.Tax.Type == fees.TaxGSTExclusive {
			base = base.Sub(taxes[i])
		}
		title := b.structure.Name
		if n > 1 {
			title = fees.InstallmentTitle(b.structure.Name, i+1, n, labels[i])
		}
		due := fees.AddMonths(a.StartDate, i)
		records = append(records, b.record(title, a.StartDate, due, base, discounts[i], scholarships[i], taxes[i], finals[i]))
	}
	a.LastBilledPeriod = a.StartDate
	return records, nil
}

// record assembles a PENDING record and consumes available credit.
func (b billing) record(title string, periodStart, due time.Time, base, discount, scholarship, tax, final decimal.Decimal) fees.FeeRecord {
	a := b.assignment
	credit := decimal.Min(a.CreditRemaining, final)
	if credit.IsNegative() {
		credit = decimal.Zero
	}
	a.CreditRemaining = a.CreditRemaining.Sub(credit)
	record := fees.FeeRecord{
		ID:                fees.NewID("rec"),
		CoachingID:        a.CoachingID,
		MemberID:          a.MemberID,
		AssignmentID:      a.ID,
		Title:             title,
		PeriodStart:       periodStart,
		DueDate:           due,
		BaseAmount:        base,
		DiscountAmount:    discount,
		ScholarshipAmount: scholarship,
		TaxAmount:         tax,
		CreditAmount:      credit,
		FinalAmount:       final.Sub(credit),
		PaidAmount:        decimal.Zero,
		WaivedAmount:      decimal.Zero,
		Version:           1,
		CreatedAt:         b.now,
		UpdatedAt:         b.now,
	}
	record.Status = record.SettledStatus()
	return record
}

// periodIndexAt is the index of the period containing t, -1 before the first.
func periodIndexAt(cycle fees.BillingCycle, start, t time.Time) int {
	if t.IsZero() || t.Before(start) {
		return -1
	}
	k := 0
	for !fees.PeriodStart(cycle, start, k+1).After(t) {
		k++
	}
	return k
}
