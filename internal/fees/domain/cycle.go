package fees

import (
	"fmt"
	"time"
)

// MonthsPerPeriod returns the period length of a recurring cycle, 0 for ONCE.
func (c BillingCycle) MonthsPerPeriod() int {
	switch c {
	case CycleMonthly:
		return 1
	case CycleQuarterly:
		return 3
	case CycleHalfYearly:
		return 6
	case CycleYearly:
		return 12
	}
	return 0
}

// Recurring reports whether the cycle bills more than once.
func (c BillingCycle) Recurring() bool {
	return c.MonthsPerPeriod() > 0
}

// AddMonths adds months keeping the day of month, clamped to the last day of the target month.
func AddMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, months, 0)
	last := target.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// PeriodStart is the start of the k-th (0-based) period of a cycle beginning at start.
func PeriodStart(cycle BillingCycle, start time.Time, k int) time.Time {
	return AddMonths(start, k*cycle.MonthsPerPeriod())
}

// PeriodTitle names a record for the period beginning at periodStart.
func PeriodTitle(name string, cycle BillingCycle, periodStart time.Time) string {
	switch cycle {
	case CycleMonthly:
		return fmt.Sprintf("%s - %s", name, periodStart.Format("Jan 2006"))
	case CycleQuarterly:
		return fmt.Sprintf("%s - Q%d %d", name, (int(periodStart.Month())-1)/3+1, periodStart.Year())
	case CycleHalfYearly:
		half := 1
		if periodStart.Month() > time.June {
			half = 2
		}
		return fmt.Sprintf("%s - H%d %d", name, half, periodStart.Year())
	case CycleYearly:
		return fmt.Sprintf("%s - %d", name, periodStart.Year())
	}
	return name
}

// InstallmentTitle names the k-th (1-based) of n installments.
func InstallmentTitle(name string, k, n int, label string) string {
	if label != "" {
		return fmt.Sprintf("%s - %s", name, label)
	}
	return fmt.Sprintf("%s - Installment %d/%d", name, k, n)
}
