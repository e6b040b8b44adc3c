package fees

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeCharge(t *testing.T) {
	tests := []struct {
		name      string
		base      string
		discount  string
		scholar   string
		tax       TaxConfig
		wantTax   string
		wantFinal string
	}{
		{name: "no tax", base: "1000", discount: "100", scholar: "50", tax: TaxConfig{Type: TaxNone}, wantTax: "0", wantFinal: "850"},
		{name: "exclusive", base: "1000", discount: "0", scholar: "0", tax: TaxConfig{Type: TaxGSTExclusive, Rate: dec("18")}, wantTax: "180", wantFinal: "1180"},
		{name: "exclusive with cess", base: "500", discount: "100", scholar: "0", tax: TaxConfig{Type: TaxGSTExclusive, Rate: dec("18"), CessRate: dec("1")}, wantTax: "76", wantFinal: "476"},
		{name: "inclusive keeps final", base: "1180", discount: "0", scholar: "0", tax: TaxConfig{Type: TaxGSTInclusive, Rate: dec("18")}, wantTax: "180", wantFinal: "1180"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeCharge(dec(tt.base), dec(tt.discount), dec(tt.scholar), tt.tax)
			require.NoError(t, err)
			assert.True(t, got.Tax.Equal(dec(tt.wantTax)), "tax %s", got.Tax)
			assert.True(t, got.Final.Equal(dec(tt.wantFinal)), "final %s", got.Final)
		})
	}
}

func TestComputeChargeRejectsNegativeFinal(t *testing.T) {
	_, err := ComputeCharge(dec("100"), dec("80"), dec("30"), TaxConfig{Type: TaxNone})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestSplitEvenly(t *testing.T) {
	parts := SplitEvenly(dec("1000"), 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "333.33", parts[0].StringFixed(2))
	assert.Equal(t, "333.33", parts[1].StringFixed(2))
	assert.Equal(t, "333.34", parts[2].StringFixed(2))
	assert.Nil(t, SplitEvenly(dec("10"), 0))
}

func TestAllocateProportional(t *testing.T) {
	parts := Allocate(dec("900"), []decimal.Decimal{dec("500"), dec("300"), dec("200")})
	require.Len(t, parts, 3)
	assert.Equal(t, "450", parts[0].String())
	assert.Equal(t, "270", parts[1].String())
	assert.Equal(t, "180", parts[2].String())

	odd := Allocate(dec("100"), []decimal.Decimal{dec("1"), dec("1"), dec("1")})
	assert.Equal(t, "33.33", odd[0].String())
	assert.Equal(t, "33.34", odd[2].String())
	assert.True(t, odd[0].Add(odd[1]).Add(odd[2]).Equal(dec("100")))
}
