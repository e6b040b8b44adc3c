package fees

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Lookups return (nil, nil) when the entity does not exist.

// StructureReader loads fee structures.
type StructureReader interface {
	GetStructure(ctx context.Context, coachingID, id string) (*FeeStructure, error)
}

// StructureStore persists fee structures.
type StructureStore interface {
	StructureReader
	ListStructures(ctx context.Context, coachingID string, includeInactive bool) ([]FeeStructure, error)
	CreateStructure(ctx context.Context, structure FeeStructure) error
	// UpdateStructure replaces a structure when its stored version matches
	// expectedVersion and bumps the version.
	UpdateStructure(ctx context.Context, structure FeeStructure, expectedVersion int) error
	// DeleteStructure hard-deletes an unreferenced structure and deactivates a referenced one.
	DeleteStructure(ctx context.Context, coachingID, id string) (deactivated bool, err error)
}

// AssignmentReader loads assignments.
type AssignmentReader interface {
	FindActiveAssignment(ctx context.Context, coachingID, memberID, concern string) (*FeeAssignment, error)
	GetAssignment(ctx context.Context, coachingID, id string) (*FeeAssignment, error)
	ListMemberAssignments(ctx context.Context, coachingID, memberID string) ([]FeeAssignment, error)
}

// RecordReader loads billing records.
type RecordReader interface {
	GetRecord(ctx context.Context, coachingID, id string) (*FeeRecord, error)
	ListAssignmentRecords(ctx context.Context, coachingID, assignmentID string) ([]FeeRecord, error)
}

// HistoryReader loads a member's full financial history.
type HistoryReader interface {
	LoadHistory(ctx context.Context, coachingID, memberID string) (History, error)
}

// SettledRecord is a live record the caller expects to waive, with the state it was previewed in.
type SettledRecord struct {
	RecordID     string
	FinalAmount  decimal.Decimal
	PaidAmount   decimal.Decimal
	WaivedAmount decimal.Decimal
}

// AssignmentCommit is everything one member-atomic assignment writes.
type AssignmentCommit struct {
	Superseded        *FeeAssignment
	SupersededVersion int
	SupersededAt      time.Time
	// ExpectedLive lists every live record of the superseded assignment as previewed.
	ExpectedLive []SettledRecord
	Waivers      []Waiver
	Assignment   FeeAssignment
	Records      []FeeRecord
}

// AssignmentWriter applies assignment mutations transactionally.
type AssignmentWriter interface {
	// CommitAssignment verifies the superseded assignment and its live records are unchanged,
	// applies waivers, removes the superseded assignment and inserts the new one with its records.
	// A drift or a second ACTIVE assignment for the concern yields a ConflictError.
	CommitAssignment(ctx context.Context, commit AssignmentCommit) error
	// UpdateAssignment replaces an assignment when its version still equals expectedVersion.
	UpdateAssignment(ctx context.Context, assignment FeeAssignment, expectedVersion int) error
	// AppendRecords stores newly billed records and the advanced assignment atomically.
	AppendRecords(ctx context.Context, assignment FeeAssignment, expectedVersion int, records []FeeRecord) error
	// ListBillableAssignments returns ACTIVE assignments across tenants.
	ListBillableAssignments(ctx context.Context) ([]FeeAssignment, error)
}

// RecordMutation updates one record together with the event that caused it.
type RecordMutation struct {
	Record          FeeRecord
	ExpectedVersion int
	Payment         *Payment
	Refund          *Refund
	Waiver          *Waiver
}

// RecordWriter applies payment, refund and waiver events.
type RecordWriter interface {
	GetPayment(ctx context.Context, coachingID, id string) (*Payment, error)
	ListPaymentRefunds(ctx context.Context, coachingID, paymentID string) ([]Refund, error)
	SaveRecordMutation(ctx context.Context, mutation RecordMutation) error
}

// MemberDirectory resolves roster members.
type MemberDirectory interface {
	GetMember(ctx context.Context, coachingID, memberID string) (*Member, error)
}
