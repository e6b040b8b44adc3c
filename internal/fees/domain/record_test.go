package fees

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordStatusAndBalance(t *testing.T) {
	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	rec := FeeRecord{FinalAmount: dec("500"), PaidAmount: dec("300"), DueDate: due, Status: RecordPending}

	assert.Equal(t, RecordPartiallyPaid, rec.SettledStatus())
	assert.Equal(t, "200", rec.Balance().String())

	rec.PaidAmount = dec("500")
	assert.Equal(t, RecordPaid, rec.SettledStatus())

	rec.PaidAmount = dec("300")
	rec.Status = RecordWaived
	rec.WaivedAmount = dec("200")
	assert.True(t, rec.Balance().IsZero())
	assert.Equal(t, RecordWaived, rec.SettledStatus())
}

func TestEffectiveStatusAndDaysOverdue(t *testing.T) {
	due := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	rec := FeeRecord{FinalAmount: dec("500"), DueDate: due, Status: RecordPending}

	onDue := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, RecordPending, rec.EffectiveStatus(onDue))
	assert.Zero(t, rec.DaysOverdue(onDue))

	later := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, RecordOverdue, rec.EffectiveStatus(later))
	assert.Equal(t, 5, rec.DaysOverdue(later))

	rec.Status = RecordPaid
	assert.Zero(t, rec.DaysOverdue(later))
}

func TestAddMonthsClampsToMonthEnd(t *testing.T) {
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), AddMonths(start, 1))
	assert.Equal(t, time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC), PeriodStart(CycleQuarterly, start, 1))
	assert.Equal(t, "Tuition - Q2 2026", PeriodTitle("Tuition", CycleQuarterly, PeriodStart(CycleQuarterly, start, 1)))
	assert.Equal(t, "Tuition - Feb 2026", PeriodTitle("Tuition", CycleMonthly, AddMonths(start, 1)))
}

func TestRecordTitles(t *testing.T) {
	aug := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		got  string
		want string
	}{
		{"monthly", PeriodTitle("Foundation", CycleMonthly, aug), "Foundation - Aug 2026"},
		{"quarterly", PeriodTitle("Foundation", CycleQuarterly, aug), "Foundation - Q3 2026"},
		{"half yearly", PeriodTitle("Foundation", CycleHalfYearly, aug), "Foundation - H2 2026"},
		{"yearly", PeriodTitle("Foundation", CycleYearly, aug), "Foundation - 2026"},
		{"once", PeriodTitle("Crash Course", CycleOnce, aug), "Crash Course"},
		{"installment", InstallmentTitle("Crash Course", 2, 3, ""), "Crash Course - Installment 2/3"},
		{"labelled installment", InstallmentTitle("Crash Course", 1, 2, "Admission"), "Crash Course - Admission"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.got)
		})
	}
}

func TestNormalizeDatesPinsMidnightUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	end := time.Date(2026, 6, 30, 23, 59, 0, 0, time.UTC)
	o := PricingOverrides{
		StartDate: time.Date(2026, 3, 1, 2, 0, 0, 0, ist),
		EndDate:   &end,
	}
	o.NormalizeDates()
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), o.StartDate)
	assert.Equal(t, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC), *o.EndDate)
	assert.Equal(t, time.Date(2026, 6, 30, 23, 59, 0, 0, time.UTC), end)

	var empty PricingOverrides
	empty.NormalizeDates()
	assert.True(t, empty.StartDate.IsZero())
	assert.Nil(t, empty.EndDate)
}
