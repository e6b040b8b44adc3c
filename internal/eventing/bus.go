package eventing

import (
	"context"
	"errors"
	"reflect"
	"sync"
)

// Handler consumes one delivered event.
type Handler func(ctx context.Context, event any) error

// Bus fans events out to handlers keyed by event type name.
type Bus interface {
	Publish(ctx context.Context, event any) error
	Subscribe(eventType string, handler Handler)
}

var (
	ErrNilEvent         = errors.New("eventing: nil event")
	ErrInvalidEventType = errors.New("eventing: invalid event type")
)

// InMemoryBus delivers synchronously in subscription order. Every handler
// runs; their failures are joined.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string][]Handler)}
}

func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	name := EventType(event)
	if name == "" {
		return ErrInvalidEventType
	}
	b.mu.RLock()
	handlers := b.handlers[name]
	b.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *InMemoryBus) Subscribe(eventType string, handler Handler) {
	if eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	// copy on write so Publish can range over a stable slice
	next := make([]Handler, len(b.handlers[eventType]), len(b.handlers[eventType])+1)
	copy(next, b.handlers[eventType])
	b.handlers[eventType] = append(next, handler)
}

// EventType names an event by its package-qualified struct type, pointers stripped.
func EventType(event any) string {
	if event == nil {
		return ""
	}
	return baseType(reflect.TypeOf(event)).String()
}

// EventTypeOf is EventType for a type parameter.
func EventTypeOf[T any]() string {
	return baseType(reflect.TypeOf((*T)(nil)).Elem()).String()
}

func baseType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
