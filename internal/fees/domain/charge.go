package fees

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Charge is the amount breakdown of one billable record.
type Charge struct {
	Base        decimal.Decimal
	Discount    decimal.Decimal
	Scholarship decimal.Decimal
	Taxable     decimal.Decimal
	Tax         decimal.Decimal
	Final       decimal.Decimal
}

// RoundMoney rounds half away from zero to two decimals.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ComputeCharge applies discount, scholarship and tax to a base amount.
// finalAmount = base - discount - scholarship + tax, where tax is only added for GST_EXCLUSIVE.
func ComputeCharge(base, discount, scholarship decimal.Decimal, tax TaxConfig) (Charge, error) {
	if base.IsNegative() {
		return Charge{}, Invalid("amount", "must not be negative")
	}
	if discount.IsNegative() {
		return Charge{}, Invalid("discountAmount", "must not be negative")
	}
	if scholarship.IsNegative() {
		return Charge{}, Invalid("scholarshipAmount", "must not be negative")
	}
	taxable := base.Sub(discount).Sub(scholarship)
	if taxable.IsNegative() {
		return Charge{}, Invalid("discountAmount", "discount and scholarship exceed the amount")
	}
	charge := Charge{
		Base:        RoundMoney(base),
		Discount:    RoundMoney(discount),
		Scholarship: RoundMoney(scholarship),
		Taxable:     RoundMoney(taxable),
	}
	rate := tax.EffectiveRate()
	switch tax.Type {
	case TaxGSTExclusive:
		charge.Tax = RoundMoney(taxable.Mul(rate).Div(hundred))
		charge.Final = charge.Taxable.Add(charge.Tax)
	case TaxGSTInclusive:
		net := taxable.Div(decimal.NewFromInt(1).Add(rate.Div(hundred)))
		charge.Tax = RoundMoney(taxable.Sub(net))
		charge.Final = charge.Taxable
	default:
		charge.Tax = decimal.Zero
		charge.Final = charge.Taxable
	}
	return charge, nil
}

// SplitEvenly divides total into n parts of two decimals, the remainder going to the last part.
func SplitEvenly(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	weights := make([]decimal.Decimal, n)
	for i := range weights {
		weights[i] = decimal.NewFromInt(1)
	}
	return Allocate(total, weights)
}

// Allocate divides total in proportion to weights. Every part but the last is
// rounded down to two decimals; the last takes the remainder, so parts always
// sum to the rounded total.
func Allocate(total decimal.Decimal, weights []decimal.Decimal) []decimal.Decimal {
	n := len(weights)
	if n == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	parts := make([]decimal.Decimal, n)
	allocated := decimal.Zero
	for i := 0; i < n-1; i++ {
		if sum.IsZero() {
			parts[i] = decimal.Zero
			continue
		}
		parts[i] = total.Mul(weights[i]).Div(sum).RoundDown(2)
		allocated = allocated.Add(parts[i])
	}
	parts[n-1] = RoundMoney(total).Sub(allocated)
	return parts
}
