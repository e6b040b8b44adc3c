package eventing

import (
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Envelope is the stored and delivered form of an event. TenantID is the
// coaching that owns the event; MemberID is set for member-scoped events.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id"`
	TenantID      string          `json:"tenant_id"`
	MemberID      string          `json:"member_id,omitempty"`
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// Meta overrides envelope fields. Zero fields fall back to the event.
type Meta struct {
	EventID       string
	OccurredAt    time.Time
	CorrelationID string
	TenantID      string
	MemberID      string
	SchemaVersion int
}

// Scoped events report their coaching, member and occurrence time directly.
type Scoped interface {
	EventScope() (coachingID, memberID string, occurredAt time.Time)
}

// NewEventID returns a random event id.
func NewEventID() string {
	return uuid.NewString()
}

// BuildEnvelope wraps event with meta. Events that do not implement Scoped
// are inspected for CoachingID, MemberID and OccurredAt fields.
func BuildEnvelope(event any, meta Meta) (Envelope, error) {
	if event == nil {
		return Envelope{}, errors.New("eventing: nil event")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, err
	}

	coachingID, memberID, occurredAt := scopeOf(event)
	env := Envelope{
		EventID:       firstNonEmpty(meta.EventID, NewEventID()),
		EventType:     EventType(event),
		TenantID:      firstNonEmpty(meta.TenantID, coachingID),
		MemberID:      firstNonEmpty(meta.MemberID, memberID),
		SchemaVersion: meta.SchemaVersion,
		Payload:       payload,
	}
	env.CorrelationID = firstNonEmpty(meta.CorrelationID, env.EventID)
	if env.SchemaVersion == 0 {
		env.SchemaVersion = 1
	}
	switch {
	case !meta.OccurredAt.IsZero():
		env.OccurredAt = meta.OccurredAt.UTC()
	case !occurredAt.IsZero():
		env.OccurredAt = occurredAt.UTC()
	default:
		env.OccurredAt = time.Now().UTC()
	}
	return env, nil
}

func scopeOf(event any) (string, string, time.Time) {
	if scoped, ok := event.(Scoped); ok {
		return scoped.EventScope()
	}
	value := reflect.ValueOf(event)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return "", "", time.Time{}
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return "", "", time.Time{}
	}
	var coachingID, memberID string
	var occurredAt time.Time
	if f := value.FieldByName("CoachingID"); f.IsValid() && f.Kind() == reflect.String {
		coachingID = f.String()
	}
	if f := value.FieldByName("MemberID"); f.IsValid() && f.Kind() == reflect.String {
		memberID = f.String()
	}
	if f := value.FieldByName("OccurredAt"); f.IsValid() && f.CanInterface() {
		occurredAt, _ = f.Interface().(time.Time)
	}
	return coachingID, memberID, occurredAt
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
