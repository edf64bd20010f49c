package engine

import (
	"sync"
	"time"
)

type EventType int

type SubscriberID int

type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// EventBus fans typed monitor events out to in-process handlers.
// Delivery is keyed by event type, with a separate catch-all list for
// subscribers like the exporter that want everything. Handlers run
// synchronously on the emitting goroutine, so they must not block.
type EventBus struct {
	mu     sync.RWMutex
	nextID SubscriberID
	all    map[SubscriberID]func(Event)
	byType map[EventType]map[SubscriberID]func(Event)
}

func NewEventBus() *EventBus {
	return &EventBus{
		all:    make(map[SubscriberID]func(Event)),
		byType: make(map[EventType]map[SubscriberID]func(Event)),
	}
}

// Subscribe registers a catch-all handler.
func (eb *EventBus) Subscribe(fn func(Event)) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	eb.all[eb.nextID] = fn
	return eb.nextID
}

// SubscribeTypes registers a handler for the named event types only.
func (eb *EventBus) SubscribeTypes(fn func(Event), types ...EventType) SubscriberID {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	for _, t := range types {
		if eb.byType[t] == nil {
			eb.byType[t] = make(map[SubscriberID]func(Event))
		}
		eb.byType[t][eb.nextID] = fn
	}
	return eb.nextID
}

// Unsubscribe removes a subscriber wherever it is registered.
func (eb *EventBus) Unsubscribe(id SubscriberID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	delete(eb.all, id)
	for _, handlers := range eb.byType {
		delete(handlers, id)
	}
}

// Emit delivers an event to the type's handlers and every catch-all.
func (eb *EventBus) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	eb.mu.RLock()
	handlers := make([]func(Event), 0, len(eb.byType[evt.Type])+len(eb.all))
	for _, fn := range eb.byType[evt.Type] {
		handlers = append(handlers, fn)
	}
	for _, fn := range eb.all {
		handlers = append(handlers, fn)
	}
	eb.mu.RUnlock()

	for _, fn := range handlers {
		fn(evt)
	}
}
