// Package events provides the in-process event bus the modules communicate
// over. It is platform infrastructure; the event definitions themselves
// live in internal/events.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event.
type Event interface {
	// EventName uniquely identifies the event type on the bus.
	EventName() string
	// OccurredAt reports when the event happened.
	OccurredAt() time.Time
}

// Handler consumes events of one type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes domain events to subscribed handlers.
type Bus interface {
	// Publish dispatches an event to its handlers asynchronously.
	Publish(ctx context.Context, event Event)

	// PublishSync dispatches an event and waits for every handler.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for the named event type.
	Subscribe(eventName string, handler Handler)
}

// BaseEvent carries the fields shared by all events; embed it and implement
// EventName on the concrete type.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a new event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}
