// Package locks serializes mutations of one member's fee state.
package locks

import (
	"context"
	"sync"
	"time"

	fees "coaching-fees/internal/fees/domain"
	"coaching-fees/internal/observability/metrics"
)

// Locker acquires an exclusive lock on a key until unlock is called.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// MemberKey is the lock key of a member's fee state.
func MemberKey(coachingID, memberID string) string {
	return "fees:lock:" + coachingID + ":" + memberID
}

// KeyedMutex is an in-process Locker. Waiting honours ctx.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex constructs an in-process Locker.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done; the latter yields a ConflictError.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	m.mu.Lock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, s)
		metrics.ObserveLockWait(metrics.ResultError, time.Since(start))
		return nil, fees.Conflict("member state %s is locked by another operation", key)
	}
	metrics.ObserveLockWait(metrics.ResultSuccess, time.Since(start))

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			m.release(key, s)
		})
	}, nil
}

func (m *KeyedMutex) release(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}
