// Package bus provides event bus abstractions for the memory service.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event represents a message on the event bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Channel   string                 `json:"channel"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent creates a new event with a UUID and current timestamp.
func NewEvent(channel, eventType string, data map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Channel:   channel,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventHandler is a function that handles an event.
//
// Handlers are invoked synchronously in publication order and must not
// block; slow consumers buffer on their own side.
type EventHandler func(ctx context.Context, event *Event) error

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	IsValid() bool
}

// EventBus interface for event bus operations.
type EventBus interface {
	// Publish sends an event to a subject. Subjects are the event type
	// namespace ("message.new", "capacity.zone", ...).
	Publish(ctx context.Context, subject string, event *Event) error

	// Subscribe creates a subscription to a subject pattern. Patterns
	// support NATS-style wildcards: * (single token) and > (rest).
	Subscribe(subject string, handler EventHandler) (Subscription, error)

	// Close closes the bus and deactivates all subscriptions.
	Close()

	// IsConnected returns connection status.
	IsConnected() bool
}
