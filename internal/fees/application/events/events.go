package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssignmentCreated is emitted when a member-atomic assignment commits.
type AssignmentCreated struct {
	CoachingID     string
	MemberID       string
	AssignmentID   string
	FeeStructureID string
	SupersededID   string
	RecordIDs      []string
	WaivedTotal    decimal.Decimal
	CreditApplied  decimal.Decimal
	OccurredAt     time.Time
}

// BulkAssignCompleted is emitted once per bulk run, whatever its outcome mix.
type BulkAssignCompleted struct {
	CoachingID     string
	OperationID    string
	FeeStructureID string
	Succeeded      int
	Failed         int
	Skipped        int
	NotAttempted   int
	OccurredAt     time.Time
}

// PaymentRecorded is emitted after a payment is stored against a record.
type PaymentRecorded struct {
	CoachingID   string
	MemberID     string
	RecordID     string
	PaymentID    string
	ReceiptNo    string
	Amount       decimal.Decimal
	Mode         string
	RecordStatus string
	OccurredAt   time.Time
}

// ReminderRequested asks the notification channel to nudge a member about a record.
type ReminderRequested struct {
	CoachingID  string
	MemberID    string
	MemberName  string
	Phone       string
	RecordID    string
	Title       string
	Balance     decimal.Decimal
	DueDate     time.Time
	DaysOverdue int
	RequestedBy string
	OccurredAt  time.Time
}

// Samples lists every event type for registry wiring.
func Samples() []any {
	return []any{
		AssignmentCreated{},
		BulkAssignCompleted{},
		PaymentRecorded{},
		ReminderRequested{},
	}
}

func (e AssignmentCreated) EventScope() (string, string, time.Time) {
	return e.CoachingID, e.MemberID, e.OccurredAt
}

// EventScope has no member; the run spans many.
func (e BulkAssignCompleted) EventScope() (string, string, time.Time) {
	return e.CoachingID, "", e.OccurredAt
}

func (e PaymentRecorded) EventScope() (string, string, time.Time) {
	return e.CoachingID, e.MemberID, e.OccurredAt
}

func (e ReminderRequested) EventScope() (string, string, time.Time) {
	return e.CoachingID, e.MemberID, e.OccurredAt
}
