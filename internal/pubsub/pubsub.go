package pubsub

import (
	"context"
	"time"
)

// Message is the structure passed between components on the bus.
type Message struct {
	// Topic identifies the channel the message belongs to (e.g. "hub.connection.opened").
	Topic string
	// UserID identifies the user the event concerns, if any.
	UserID string
	// Payload is the JSON-encoded event body.
	Payload []byte
	// Metadata carries arbitrary key-value context.
	Metadata map[string]string
	// PublishedAt is stamped by the bus; it is ignored on Publish.
	PublishedAt time.Time
}

// Handler processes a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher sends messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber receives messages from the bus.
type Subscriber interface {
	// Subscribe registers handler for topic and returns once the subscription
	// is active. Delivery stops when ctx is canceled or the bus is closed.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Bus is both ends of an event bus.
type Bus interface {
	Publisher
	Subscriber
}
