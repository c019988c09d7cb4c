package controller

import (
	"log/slog"
	"sync"
)

// Handler receives the arguments of a dispatched event unchanged.
type Handler func(args ...any)

// ListenerID identifies a single registration. The zero value never refers to one.
type ListenerID uint64

type listener struct {
	id ListenerID
	fn Handler
}

// EventRegistry keeps ordered listener lists for the fixed event vocabulary.
type EventRegistry struct {
	logger *slog.Logger

	mu        sync.Mutex
	nextID    ListenerID
	listeners map[EventName][]listener
}

func NewEventRegistry(logger *slog.Logger) *EventRegistry {
	if logger == nil {
		logger = slog.Default().With("component", "controller")
	}

	r := &EventRegistry{
		logger:    logger,
		listeners: make(map[EventName][]listener, len(events)),
	}
	for _, name := range events {
		r.listeners[name] = nil
	}

	return r
}

// On appends fn to the listeners of event. A nil fn is ignored.
func (r *EventRegistry) On(event EventName, fn Handler) ListenerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.listeners[event]
	if !ok {
		r.logger.Warn("undefined event name", "op", "on", "event", string(event))

		return 0
	}
	if fn == nil {
		return 0
	}

	r.nextID++
	id := r.nextID
	r.listeners[event] = append(current, listener{id: id, fn: fn})

	return id
}

// Off removes the registration id from event. Unknown ids are ignored.
func (r *EventRegistry) Off(event EventName, id ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.listeners[event]
	if !ok {
		r.logger.Warn("undefined event name", "op", "off", "event", string(event))

		return
	}

	idx := -1
	for i, l := range current {
		if l.id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	// Copy on removal: snapshots held by in-flight dispatches share the old backing array.
	next := make([]listener, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	r.listeners[event] = next
}

// Dispatch calls every listener registered for event at the moment of the call,
// in registration order. A panicking listener does not stop the others.
func (r *EventRegistry) Dispatch(event EventName, args ...any) {
	r.mu.Lock()
	snapshot, ok := r.listeners[event]
	r.mu.Unlock()
	if !ok {
		r.logger.Warn("dispatch of undefined event name", "event", string(event))

		return
	}

	for _, l := range snapshot {
		r.invoke(event, l, args)
	}
}

func (r *EventRegistry) invoke(event EventName, l listener, args []any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event listener panicked", "event", string(event), "listener", uint64(l.id), "panic", rec)
		}
	}()

	l.fn(args...)
}

// Len reports how many listeners are registered for event.
func (r *EventRegistry) Len(event EventName) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.listeners[event])
}

// Reset drops every listener while keeping the event buckets.
func (r *EventRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.listeners {
		r.listeners[name] = nil
	}
}
