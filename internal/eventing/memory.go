package eventing

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type memoryOutboxEntry struct {
	record OutboxRecord
	status string
	seq    int
}

// MemoryOutbox is an in-process outbox used when no database is configured.
type MemoryOutbox struct {
	mu      sync.Mutex
	entries map[string]*memoryOutboxEntry
	seq     int
}

// NewMemoryOutbox constructs an empty outbox.
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{entries: make(map[string]*memoryOutboxEntry)}
}

// Insert stores the envelope as pending.
func (o *MemoryOutbox) Insert(_ context.Context, env Envelope) (string, error) {
	if env.EventID == "" {
		return "", errors.New("memory outbox: empty event id")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	id := NewEventID()
	o.entries[id] = &memoryOutboxEntry{
		record: OutboxRecord{ID: id, Envelope: env},
		status: "pending",
		seq:    o.seq,
	}
	return id, nil
}

// ListPending returns pending records oldest first.
func (o *MemoryOutbox) ListPending(_ context.Context, limit int) ([]OutboxRecord, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	pending := make([]*memoryOutboxEntry, 0, len(o.entries))
	for _, entry := range o.entries {
		if entry.status == "pending" {
			pending = append(pending, entry)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	out := make([]OutboxRecord, 0, len(pending))
	for _, entry := range pending {
		out = append(out, entry.record)
	}
	return out, nil
}

// MarkSent marks a record delivered.
func (o *MemoryOutbox) MarkSent(_ context.Context, id string) error {
	return o.set(id, "sent", false)
}

// MarkRetry keeps a record pending and counts the failed attempt.
func (o *MemoryOutbox) MarkRetry(_ context.Context, id string) error {
	return o.set(id, "pending", true)
}

// MarkFailed marks a record failed.
func (o *MemoryOutbox) MarkFailed(_ context.Context, id string) error {
	return o.set(id, "failed", true)
}

// Count returns the number of records in the given status.
func (o *MemoryOutbox) Count(status string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, entry := range o.entries {
		if entry.status == status {
			n++
		}
	}
	return n
}

func (o *MemoryOutbox) set(id, status string, attempt bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.entries[id]
	if !ok {
		return errors.New("memory outbox: unknown id")
	}
	entry.status = status
	if attempt {
		entry.record.Attempts++
	}
	return nil
}

// MemoryProcessedStore tracks processed events per consumer in memory.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[[2]string]struct{}
}

// NewMemoryProcessedStore constructs an empty store.
func NewMemoryProcessedStore() *MemoryProcessedStore {
	return &MemoryProcessedStore{seen: make(map[[2]string]struct{})}
}

// HasProcessed reports whether consumer already handled eventID.
func (s *MemoryProcessedStore) HasProcessed(_ context.Context, eventID, consumerName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[[2]string{eventID, consumerName}]
	return ok, nil
}

// MarkProcessed records eventID as handled by consumer.
func (s *MemoryProcessedStore) MarkProcessed(_ context.Context, eventID, consumerName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[[2]string{eventID, consumerName}] = struct{}{}
	return nil
}

// MemoryDLQ keeps dead-lettered envelopes in memory.
type MemoryDLQ struct {
	mu      sync.Mutex
	entries []DeadLetter
}

// DeadLetter is an envelope that could not be delivered.
type DeadLetter struct {
	Envelope Envelope
	Error    string
	At       time.Time
}

// RecordFailure appends the envelope.
func (q *MemoryDLQ) RecordFailure(_ context.Context, env Envelope, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	q.mu.Lock()
	q.entries = append(q.entries, DeadLetter{Envelope: env, Error: msg, At: time.Now().UTC()})
	q.mu.Unlock()
	return nil
}

// Entries returns a copy of the dead letters.
func (q *MemoryDLQ) Entries() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.entries...)
}
