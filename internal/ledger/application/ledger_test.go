package application

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fees "coaching-fees/internal/fees/domain"
)

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func day(d int) time.Time {
	return time.Date(2026, time.January, d, 10, 0, 0, 0, time.UTC)
}

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func record(id string, final int64, created time.Time) fees.FeeRecord {
	return fees.FeeRecord{
		ID:           id,
		AssignmentID: "asg-1",
		Title:        "Tuition - " + id,
		DueDate:      created.AddDate(0, 0, 10),
		FinalAmount:  amount(final),
		PaidAmount:   decimal.Zero,
		WaivedAmount: decimal.Zero,
		Status:       fees.RecordPending,
		CreatedAt:    created,
	}
}

func balances(l Ledger) []string {
	out := make([]string, 0, len(l.Timeline))
	for _, e := range l.Timeline {
		out = append(out, e.RunningBalance.String())
	}
	return out
}

func TestBuildChargePaymentRefundRoundTrip(t *testing.T) {
	rec := record("rec-1", 1000, day(1))
	rec.PaidAmount = amount(400)
	rec.Status = fees.RecordPartiallyPaid
	history := fees.History{
		Records:  []fees.FeeRecord{rec},
		Payments: []fees.Payment{{ID: "pay-1", RecordID: "rec-1", Amount: amount(600), Mode: fees.ModeUPI, ReceiptNo: "RCP-1", PaidAt: day(5), CreatedAt: day(5)}},
		Refunds:  []fees.Refund{{ID: "ref-1", PaymentID: "pay-1", RecordID: "rec-1", Amount: amount(200), Mode: fees.ModeCash, RefundedAt: day(10), CreatedAt: day(10)}},
	}

	ledger := Build(history)

	assert.Equal(t, []string{"1000", "400", "600"}, balances(ledger))
	assert.Equal(t, []EntryType{EntryRecord, EntryPayment, EntryRefund},
		[]EntryType{ledger.Timeline[0].Type, ledger.Timeline[1].Type, ledger.Timeline[2].Type})
	assert.True(t, ledger.Summary.TotalCharged.Equal(amount(1000)))
	assert.True(t, ledger.Summary.TotalPaid.Equal(amount(600)))
	assert.True(t, ledger.Summary.TotalRefunded.Equal(amount(200)))
	assert.True(t, ledger.Summary.Balance.Equal(amount(600)))
	require.NotNil(t, ledger.Summary.NextDueDate)
	assert.True(t, ledger.Summary.NextDueAmount.Equal(amount(600)))
}

func TestBuildIsIdempotent(t *testing.T) {
	history := fees.History{
		Records: []fees.FeeRecord{record("rec-1", 1000, day(1)), record("rec-2", 500, day(1))},
		Payments: []fees.Payment{
			{ID: "pay-1", RecordID: "rec-2", Amount: amount(500), PaidAt: day(1), CreatedAt: day(1)},
		},
	}

	first, err := json.Marshal(Build(history))
	require.NoError(t, err)
	second, err := json.Marshal(Build(history))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestBuildPreservesNegativeBalance(t *testing.T) {
	history := fees.History{
		Records:  []fees.FeeRecord{record("rec-1", 1000, day(1))},
		Payments: []fees.Payment{{ID: "pay-1", RecordID: "rec-1", Amount: amount(1200), PaidAt: day(2), CreatedAt: day(2)}},
	}
	ledger := Build(history)
	assert.Equal(t, []string{"1000", "-200"}, balances(ledger))
	assert.True(t, ledger.Summary.Balance.Equal(amount(-200)))
}

func TestBuildSameInstantKeepsCreationOrder(t *testing.T) {
	// A payment backdated onto the charge instant still follows the charge.
	history := fees.History{
		Records:  []fees.FeeRecord{record("rec-1", 300, day(3))},
		Payments: []fees.Payment{{ID: "pay-1", RecordID: "rec-1", Amount: amount(100), PaidAt: day(3), CreatedAt: day(4)}},
	}
	ledger := Build(history)
	assert.Equal(t, []string{"300", "200"}, balances(ledger))
}

func TestBuildWaiverClosesBalance(t *testing.T) {
	rec := record("rec-1", 500, day(1))
	rec.PaidAmount = amount(300)
	rec.WaivedAmount = amount(200)
	rec.Status = fees.RecordWaived
	history := fees.History{
		Records:  []fees.FeeRecord{rec},
		Payments: []fees.Payment{{ID: "pay-1", RecordID: "rec-1", Amount: amount(300), PaidAt: day(2), CreatedAt: day(2)}},
		Waivers:  []fees.Waiver{{ID: "wv-1", RecordID: "rec-1", WaivedAmount: amount(200), Reason: fees.SupersededReason, WaivedAt: day(6), CreatedAt: day(6)}},
	}
	ledger := Build(history)
	assert.Equal(t, []string{"500", "200", "0"}, balances(ledger))
	assert.True(t, ledger.Summary.TotalWaived.Equal(amount(200)))
	assert.Nil(t, ledger.Summary.NextDueDate)

	require.Len(t, ledger.Timeline, 3)
	assert.Equal(t, EntryWaiver, ledger.Timeline[2].Type)
	s := ledger.Summary
	assert.True(t, s.Balance.Equal(s.TotalCharged.Sub(s.TotalPaid).Add(s.TotalRefunded).Sub(s.TotalWaived)))
}

func TestBuildBalanceInvariant(t *testing.T) {
	cases := map[string]fees.History{
		"empty": {},
		"charges only": {
			Records: []fees.FeeRecord{record("a", 100, day(1)), record("b", 250, day(2))},
		},
		"out of order input": {
			Records: []fees.FeeRecord{record("b", 250, day(9)), record("a", 100, day(1))},
			Payments: []fees.Payment{
				{ID: "p2", RecordID: "b", Amount: amount(250), PaidAt: day(12), CreatedAt: day(12)},
				{ID: "p1", RecordID: "a", Amount: amount(40), PaidAt: day(3), CreatedAt: day(3)},
			},
			Refunds: []fees.Refund{{ID: "r1", PaymentID: "p1", RecordID: "a", Amount: amount(15), RefundedAt: day(4), CreatedAt: day(4)}},
			Waivers: []fees.Waiver{{ID: "w1", RecordID: "a", WaivedAmount: amount(75), WaivedAt: day(20), CreatedAt: day(20)}},
		},
	}
	for name, history := range cases {
		t.Run(name, func(t *testing.T) {
			ledger := Build(history)
			if len(ledger.Timeline) == 0 {
				assert.True(t, ledger.Summary.Balance.IsZero())
				return
			}
			last := ledger.Timeline[len(ledger.Timeline)-1].RunningBalance
			assert.True(t, last.Equal(ledger.Summary.Balance), "last %s balance %s", last, ledger.Summary.Balance)
			for i := 1; i < len(ledger.Timeline); i++ {
				assert.False(t, ledger.Timeline[i].Date.Before(ledger.Timeline[i-1].Date))
			}
		})
	}
}

func TestBuildTimelineShape(t *testing.T) {
	history := fees.History{
		Records:  []fees.FeeRecord{record("rec-1", 1000, day(1))},
		Payments: []fees.Payment{{ID: "pay-1", RecordID: "rec-1", Amount: amount(600), Mode: fees.ModeCash, ReceiptNo: "RCP-20260105-ABCD1234", PaidAt: day(5), CreatedAt: day(5)}},
	}
	want := []Entry{
		{Type: EntryRecord, Amount: amount(1000), Date: day(1), RunningBalance: amount(1000), Label: "Tuition - rec-1", RecordID: "rec-1", Ref: "rec-1"},
		{Type: EntryPayment, Amount: amount(600), Date: day(5), RunningBalance: amount(400), Label: "Payment RCP-20260105-ABCD1234", RecordID: "rec-1", Ref: "RCP-20260105-ABCD1234", Mode: "CASH"},
	}
	if diff := cmp.Diff(want, Build(history).Timeline, decimalComparer); diff != "" {
		t.Fatalf("timeline mismatch (-want +got):\n%s", diff)
	}
}
