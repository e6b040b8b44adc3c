package audit

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	fees "coaching-fees/internal/fees/domain"
)

// Event names a mutation recorded in the audit log.
type Event string

const (
	EventStructureCreated     Event = "STRUCTURE_CREATED"
	EventStructureUpdated     Event = "STRUCTURE_UPDATED"
	EventStructureDeleted     Event = "STRUCTURE_DELETED"
	EventStructureDeactivated Event = "STRUCTURE_DEACTIVATED"
	EventAssignmentCreated    Event = "ASSIGNMENT_CREATED"
	EventAssignmentUpdated    Event = "ASSIGNMENT_UPDATED"
	EventAssignmentPaused     Event = "ASSIGNMENT_PAUSED"
	EventAssignmentResumed    Event = "ASSIGNMENT_RESUMED"
	EventAssignmentRemoved    Event = "ASSIGNMENT_REMOVED"
	EventAssignmentSuperseded Event = "ASSIGNMENT_SUPERSEDED"
	EventRecordsGenerated     Event = "RECORDS_GENERATED"
	EventPaymentRecorded      Event = "PAYMENT_RECORDED"
	EventPaymentRefunded      Event = "PAYMENT_REFUNDED"
	EventFeeWaived            Event = "FEE_WAIVED"
	EventReminderSent         Event = "REMINDER_SENT"
	EventBulkAssignCompleted  Event = "BULK_ASSIGNMENT_COMPLETED"
)

// Entity types.
const (
	EntityFeeStructure  = "FEE_STRUCTURE"
	EntityFeeAssignment = "FEE_ASSIGNMENT"
	EntityFeeRecord     = "FEE_RECORD"
	EntityPayment       = "PAYMENT"
	EntityRefund        = "REFUND"
	EntityWaiver        = "WAIVER"
	EntityBulkOperation = "BULK_OPERATION"
)

// Actor types.
const (
	ActorUser   = "USER"
	ActorSystem = "SYSTEM"
)

// Entry represents an audit log entry. Entries are immutable once written.
type Entry struct {
	ID            string    `json:"id"`
	CoachingID    string    `json:"coachingId"`
	MemberID      string    `json:"memberId,omitempty"`
	Event         Event     `json:"event"`
	EntityType    string    `json:"entityType"`
	EntityID      string    `json:"entityId"`
	ActorID       string    `json:"actorId"`
	ActorType     string    `json:"actorType"`
	ActorRole     string    `json:"actorRole,omitempty"`
	Before        Fields    `json:"before,omitempty"`
	After         Fields    `json:"after,omitempty"`
	Meta          Fields    `json:"meta,omitempty"`
	Note          string    `json:"note,omitempty"`
	PayloadDigest string    `json:"payloadDigest,omitempty"`
	IP            string    `json:"ip,omitempty"`
	UserAgent     string    `json:"userAgent,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// Query filters the audit log of one coaching.
type Query struct {
	CoachingID string
	EntityType string
	Event      Event
	EntityID   string
	ActorID    string
	MemberID   string
	From       time.Time
	To         time.Time
	Page       int
	Limit      int
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Normalize applies paging defaults and rejects out-of-range values.
func (q Query) Normalize() (Query, error) {
	if q.CoachingID == "" {
		return q, fees.Invalid("coachingId", "required")
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.Page < 1 {
		return q, fees.Invalid("page", "must be at least 1")
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit < 1 || q.Limit > MaxLimit {
		return q, fees.Invalid("limit", "must be between 1 and 100")
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, fees.Invalid("to", "must not be before from")
	}
	return q, nil
}

// Offset is the row offset of the page.
func (q Query) Offset() int {
	return (q.Page - 1) * q.Limit
}

// Matches reports whether the entry passes the filters.
func (q Query) Matches(e Entry) bool {
	if e.CoachingID != q.CoachingID {
		return false
	}
	if q.EntityType != "" && e.EntityType != q.EntityType {
		return false
	}
	if q.Event != "" && e.Event != q.Event {
		return false
	}
	if q.EntityID != "" && e.EntityID != q.EntityID {
		return false
	}
	if q.ActorID != "" && e.ActorID != q.ActorID {
		return false
	}
	if q.MemberID != "" && e.MemberID != q.MemberID {
		return false
	}
	if !q.From.IsZero() && e.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && !e.CreatedAt.Before(q.To) {
		return false
	}
	return true
}

// Reader lists audit entries.
type Reader interface {
	// List returns one page, newest first, and the total count of matches.
	List(ctx context.Context, q Query) ([]Entry, int, error)
	// LatestForMember returns the newest entry of the given events for a member, nil when none.
	LatestForMember(ctx context.Context, coachingID, memberID string, events []Event) (*Entry, error)
}

// Store reads and writes audit entries.
type Store interface {
	Logger
	Reader
}

// NewID generates a random audit id.
func NewID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "audit-" + hex.EncodeToString(buf)
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digest hashes the before, after and meta payload of an entry.
func Digest(e Entry) string {
	data, err := json.Marshal(struct {
		Before Fields `json:"before"`
		After  Fields `json:"after"`
		Meta   Fields `json:"meta"`
	}{e.Before, e.After, e.Meta})
	if err != nil {
		return ""
	}
	return DigestJSON(data)
}

// Rendered is an entry with its computed changes.
type Rendered struct {
	Entry
	Changes []Change `json:"changes"`
}

// Render attaches the field-level diff to an entry.
func (d Differ) Render(e Entry) Rendered {
	return Rendered{Entry: e, Changes: d.Diff(e.Before, e.After, e.Meta)}
}
