package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps audit entries in process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	// FailWith, when set, is returned by Log.
	FailWith error
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Log appends an entry.
func (s *MemoryStore) Log(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = Digest(entry)
	}
	s.entries = append(s.entries, entry)
	return nil
}

// List returns one page of matching entries, newest first.
func (s *MemoryStore) List(_ context.Context, q Query) ([]Entry, int, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, 0, err
	}
	matched := s.newestFirst(func(e Entry) bool { return q.Matches(e) })
	total := len(matched)
	start := q.Offset()
	if start >= total {
		return []Entry{}, total, nil
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// LatestForMember returns the newest entry of the given events for a member.
func (s *MemoryStore) LatestForMember(_ context.Context, coachingID, memberID string, events []Event) (*Entry, error) {
	wanted := make(map[Event]struct{}, len(events))
	for _, event := range events {
		wanted[event] = struct{}{}
	}
	matched := s.newestFirst(func(e Entry) bool {
		if e.CoachingID != coachingID || e.MemberID != memberID {
			return false
		}
		if len(wanted) == 0 {
			return true
		}
		_, ok := wanted[e.Event]
		return ok
	})
	if len(matched) == 0 {
		return nil, nil
	}
	entry := matched[0]
	return &entry, nil
}

// Entries returns a copy of every entry in insertion order.
func (s *MemoryStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *MemoryStore) newestFirst(keep func(Entry) bool) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type indexed struct {
		seq   int
		entry Entry
	}
	matched := make([]indexed, 0, len(s.entries))
	for i, e := range s.entries {
		if keep(e) {
			matched = append(matched, indexed{seq: i, entry: e})
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.entry.CreatedAt.Equal(b.entry.CreatedAt) {
			return a.entry.CreatedAt.After(b.entry.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]Entry, len(matched))
	for i, m := range matched {
		out[i] = m.entry
	}
	return out
}
