package application

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	fees "coaching-fees/internal/fees/domain"
)

// EntryType is the kind of financial event a ledger line represents.
type EntryType string

const (
	EntryRecord  EntryType = "RECORD"
	EntryPayment EntryType = "PAYMENT"
	EntryRefund  EntryType = "REFUND"
	EntryWaiver  EntryType = "WAIVER"
)

// Entry is one line of the timeline with the balance after it.
type Entry struct {
	Type           EntryType       `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	Date           time.Time       `json:"date"`
	RunningBalance decimal.Decimal `json:"runningBalance"`
	Label          string          `json:"label"`
	RecordID       string          `json:"recordId"`
	Ref            string          `json:"ref"`
	Mode           string          `json:"mode,omitempty"`
}

// Summary totals a member's history.
type Summary struct {
	TotalCharged  decimal.Decimal `json:"totalCharged"`
	TotalPaid     decimal.Decimal `json:"totalPaid"`
	TotalRefunded decimal.Decimal `json:"totalRefunded"`
	TotalWaived   decimal.Decimal `json:"totalWaived"`
	Balance       decimal.Decimal `json:"balance"`
	NextDueDate   *time.Time      `json:"nextDueDate"`
	NextDueAmount decimal.Decimal `json:"nextDueAmount"`
}

// Ledger is the balance-annotated timeline of one member.
type Ledger struct {
	Summary  Summary `json:"summary"`
	Timeline []Entry `json:"timeline"`
}

var kindRank = map[EntryType]int{
	EntryRecord:  0,
	EntryPayment: 1,
	EntryRefund:  2,
	EntryWaiver:  3,
}

type event struct {
	entry   Entry
	created time.Time
	seq     int
}

// Build replays history into a ledger. Charges are dated at record creation,
// payments at paidAt, refunds at refundedAt and waivers at waivedAt. Events on
// the same instant keep creation order. The balance is never clamped.
// A waiver is its own WAIVER entry so the write-off stays visible, and the
// balance is charged - paid + refunded - waived; without waivers this is
// charged - paid + refunded.
func Build(history fees.History) Ledger {
	events := make([]event, 0, len(history.Records)+len(history.Payments)+len(history.Refunds)+len(history.Waivers))
	seq := 0
	add := func(e Entry, created time.Time) {
		events = append(events, event{entry: e, created: created, seq: seq})
		seq++
	}

	summary := Summary{
		TotalCharged:  decimal.Zero,
		TotalPaid:     decimal.Zero,
		TotalRefunded: decimal.Zero,
		TotalWaived:   decimal.Zero,
		NextDueAmount: decimal.Zero,
	}

	for _, r := range history.Records {
		add(Entry{
			Type:     EntryRecord,
			Amount:   r.FinalAmount,
			Date:     r.CreatedAt.UTC(),
			Label:    r.Title,
			RecordID: r.ID,
			Ref:      r.ID,
		}, r.CreatedAt)
		summary.TotalCharged = summary.TotalCharged.Add(r.FinalAmount)
	}
	for _, p := range history.Payments {
		add(Entry{
			Type:     EntryPayment,
			Amount:   p.Amount,
			Date:     p.PaidAt.UTC(),
			Label:    "Payment " + p.ReceiptNo,
			RecordID: p.RecordID,
			Ref:      p.ReceiptNo,
			Mode:     string(p.Mode),
		}, p.CreatedAt)
		summary.TotalPaid = summary.TotalPaid.Add(p.Amount)
	}
	for _, r := range history.Refunds {
		label := "Refund"
		if r.Reason != "" {
			label += ": " + r.Reason
		}
		add(Entry{
			Type:     EntryRefund,
			Amount:   r.Amount,
			Date:     r.RefundedAt.UTC(),
			Label:    label,
			RecordID: r.RecordID,
			Ref:      r.PaymentID,
			Mode:     string(r.Mode),
		}, r.CreatedAt)
		summary.TotalRefunded = summary.TotalRefunded.Add(r.Amount)
	}
	for _, w := range history.Waivers {
		add(Entry{
			Type:     EntryWaiver,
			Amount:   w.WaivedAmount,
			Date:     w.WaivedAt.UTC(),
			Label:    "Waiver: " + w.Reason,
			RecordID: w.RecordID,
			Ref:      w.ID,
		}, w.CreatedAt)
		summary.TotalWaived = summary.TotalWaived.Add(w.WaivedAmount)
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.entry.Date.Equal(b.entry.Date) {
			return a.entry.Date.Before(b.entry.Date)
		}
		if !a.created.Equal(b.created) {
			return a.created.Before(b.created)
		}
		if kindRank[a.entry.Type] != kindRank[b.entry.Type] {
			return kindRank[a.entry.Type] < kindRank[b.entry.Type]
		}
		return a.seq < b.seq
	})

	running := decimal.Zero
	timeline := make([]Entry, 0, len(events))
	for _, e := range events {
		switch e.entry.Type {
		case EntryRecord, EntryRefund:
			running = running.Add(e.entry.Amount)
		case EntryPayment, EntryWaiver:
			running = running.Sub(e.entry.Amount)
		}
		e.entry.RunningBalance = running
		timeline = append(timeline, e.entry)
	}

	summary.Balance = summary.TotalCharged.
		Sub(summary.TotalPaid).
		Add(summary.TotalRefunded).
		Sub(summary.TotalWaived)
	applyNextDue(&summary, history.Records)

	return Ledger{Summary: summary, Timeline: timeline}
}

func applyNextDue(summary *Summary, records []fees.FeeRecord) {
	var next *fees.FeeRecord
	for i := range records {
		r := &records[i]
		if !r.Status.Live() || !r.Balance().IsPositive() {
			continue
		}
		if next == nil || r.DueDate.Before(next.DueDate) {
			next = r
		}
	}
	if next == nil {
		return
	}
	due := next.DueDate.UTC()
	summary.NextDueDate = &due
	summary.NextDueAmount = next.Balance()
}
