package eventing

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ErrUnknownEventType means an outbox row names a type nobody registered.
var ErrUnknownEventType = errors.New("eventing: unknown event type")

// Registry turns stored payloads back into typed events for redelivery.
type Registry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewRegistry registers each sample's type.
func NewRegistry(samples ...any) *Registry {
	r := &Registry{types: make(map[string]reflect.Type, len(samples))}
	for _, sample := range samples {
		r.Register(sample)
	}
	return r
}

func (r *Registry) Register(sample any) {
	if r == nil || sample == nil {
		return
	}
	t := baseType(reflect.TypeOf(sample))
	r.mu.Lock()
	r.types[t.String()] = t
	r.mu.Unlock()
}

func (r *Registry) Known(eventType string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[eventType]
	return ok
}

// Types lists registered event type names in order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DecodePayload returns the envelope payload as a value of its registered type.
func (r *Registry) DecodePayload(env Envelope) (any, error) {
	if r == nil {
		return nil, errors.New("eventing: nil registry")
	}
	r.mu.RLock()
	t, ok := r.types[env.EventType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, env.EventType)
	}
	target := reflect.New(t)
	if err := json.Unmarshal(env.Payload, target.Interface()); err != nil {
		return nil, fmt.Errorf("eventing: decode %s: %w", env.EventType, err)
	}
	return target.Elem().Interface(), nil
}
