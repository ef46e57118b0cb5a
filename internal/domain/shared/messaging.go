package shared

import (
	"context"
	"time"
)

// Standard message header names.
const (
	HeaderMessageID     = "message_id"
	HeaderCorrelationID = "correlation_id"
	HeaderEventType     = "event_type"
	HeaderOccurredAt    = "occurred_at"
)

// Message is the broker-level envelope of a published event.
type Message struct {
	ID            string
	RoutingKey    string
	CorrelationID string
	EventType     string
	Body          []byte
	Headers       map[string]string
	PublishedAt   time.Time
	// Attempt is the 1-based delivery count as reported by the broker.
	Attempt int
}

// MessageHandler consumes one delivery. A nil return acknowledges the
// message; an error leaves it for redelivery until the broker's delivery
// budget is exhausted and the message is dead-lettered.
type MessageHandler interface {
	Handle(ctx context.Context, msg *Message) error
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, msg *Message) error

func (f MessageHandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// MessagePublisher publishes to a topic-style broker.
type MessagePublisher interface {
	Publish(ctx context.Context, routingKey string, msg *Message) error
}

// Broker is an at-least-once topic broker with per-routing-key subscriptions
// and a dead-letter destination for messages that exceed their delivery budget.
type Broker interface {
	MessagePublisher
	// Subscribe registers a handler for a routing key. Must be called before Start.
	Subscribe(routingKey string, handler MessageHandler) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// OutboxEventSaver saves domain events to the outbox within the caller's
// transaction. txProvider is the *gorm.DB transaction handle.
type OutboxEventSaver interface {
	SaveEvents(ctx context.Context, txProvider any, events ...DomainEvent) error
}
