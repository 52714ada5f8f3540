package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler is invoked for every event of a subscribed type. Handlers
// run synchronously on the emitter's goroutine and must not block.
type Handler func(event *Event)

// subscription pairs a handler with the id its unsubscribe closure
// removes it by. Removal by id stays correct no matter how many
// earlier subscribers have already left.
type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an in-process publish/subscribe fanout keyed by event type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	nextID   uint64
	log      zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]subscription),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for an event type. Returns an
// unsubscribe function; calling it more than once is a no-op.
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.handlers[eventType]
			for i, sub := range subs {
				if sub.id == id {
					b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit delivers an event to every handler subscribed to its type.
// A panicking handler is recovered and logged so one bad subscriber
// cannot take down the emitter.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[eventType]))
	copy(subs, b.handlers[eventType])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(sub.handler, event)
	}
}

func (b *Bus) deliver(handler Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("event_type", string(event.Type)).
				Interface("panic", r).
				Msg("Event handler panicked")
		}
	}()
	handler(event)
}
