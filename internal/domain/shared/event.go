package shared

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent represents an event that occurred in the domain
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
	// BusinessKey is the externally meaningful identifier of the aggregate
	// (a paymentNo, a batchNo). Consumers dedupe on BusinessKey + EventType.
	BusinessKey() string
}

// RoutableEvent is implemented by events that leave the process through the
// message broker.
type RoutableEvent interface {
	DomainEvent
	RoutingKey() string
}

// BaseDomainEvent provides common fields for all domain events
type BaseDomainEvent struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	AggID     uuid.UUID `json:"aggregate_id"`
	AggType   string    `json:"aggregate_type"`
	Key       string    `json:"business_key"`
}

func (e *BaseDomainEvent) EventID() uuid.UUID     { return e.ID }
func (e *BaseDomainEvent) EventType() string      { return e.Type }
func (e *BaseDomainEvent) OccurredAt() time.Time  { return e.Timestamp }
func (e *BaseDomainEvent) AggregateID() uuid.UUID { return e.AggID }
func (e *BaseDomainEvent) AggregateType() string  { return e.AggType }
func (e *BaseDomainEvent) BusinessKey() string    { return e.Key }

// NewBaseDomainEvent creates a new base domain event stamped with the current time
func NewBaseDomainEvent(eventType, aggType string, aggID uuid.UUID, businessKey string) BaseDomainEvent {
	return BaseDomainEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now(),
		AggID:     aggID,
		AggType:   aggType,
		Key:       businessKey,
	}
}

// ScopedEvent is implemented by events that can happen more than once for
// the same aggregate, such as one refund failure per refund. DedupScope names
// the occurrence and is empty when the event is unique per aggregate.
type ScopedEvent interface {
	DedupScope() string
}

// CorrelationID is the dedup key downstream consumers use for an event:
// businessKey:eventType, followed by :scope for scoped events.
func CorrelationID(event DomainEvent) string {
	id := event.BusinessKey() + ":" + event.EventType()
	if scoped, ok := event.(ScopedEvent); ok {
		if scope := scoped.DedupScope(); scope != "" {
			id += ":" + scope
		}
	}
	return id
}
