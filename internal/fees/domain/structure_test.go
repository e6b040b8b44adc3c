package fees

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validStructure() FeeStructure {
	s := FeeStructure{
		CoachingID:   "coach-1",
		Name:         " JEE Foundation ",
		Amount:       dec("12000"),
		BillingCycle: CycleOnce,
		LineItems: []LineItem{
			{Label: "Tuition", Amount: dec("10000")},
			{Label: "Material", Amount: dec("2000")},
		},
		Installments: InstallmentPolicy{Allowed: true, MaxCount: 3},
	}
	s.Normalize()
	return s
}

func TestStructureValidate(t *testing.T) {
	s := validStructure()
	require.NoError(t, s.Validate())
	assert.Equal(t, "JEE Foundation", s.Name)
	assert.Equal(t, DefaultConcern, s.Concern)
	assert.Equal(t, TaxNone, s.Tax.Type)

	cases := map[string]func(*FeeStructure){
		"missing name":       func(s *FeeStructure) { s.Name = "" },
		"zero amount":        func(s *FeeStructure) { s.Amount = dec("0") },
		"line item mismatch": func(s *FeeStructure) { s.LineItems[1].Amount = dec("1") },
		"recurring split":    func(s *FeeStructure) { s.BillingCycle = CycleMonthly },
		"bad tax rate":       func(s *FeeStructure) { s.Tax = TaxConfig{Type: TaxGSTExclusive, Rate: dec("140")} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := validStructure()
			mutate(&s)
			err := s.Validate()
			require.Error(t, err)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		})
	}
}
