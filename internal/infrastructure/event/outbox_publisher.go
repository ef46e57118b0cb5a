package event

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// OutboxPublisher writes domain events to the outbox inside the caller's
// transaction, so an event exists exactly when its state change committed.
type OutboxPublisher struct {
	serializer *EventSerializer
	maxRetries int
}

// NewOutboxPublisher creates a new outbox publisher. maxRetries is stamped on
// every entry; <= 0 uses shared.DefaultMaxRetries.
func NewOutboxPublisher(serializer *EventSerializer, maxRetries int) *OutboxPublisher {
	return &OutboxPublisher{
		serializer: serializer,
		maxRetries: maxRetries,
	}
}

// PublishWithTx stores events in the outbox using tx. Every event must
// implement shared.RoutableEvent.
func (p *OutboxPublisher) PublishWithTx(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, event := range events {
		routable, ok := event.(shared.RoutableEvent)
		if !ok {
			return fmt.Errorf("event %s has no routing key", event.EventType())
		}
		payload, err := p.serializer.Serialize(event)
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", event.EventType(), err)
		}
		entries = append(entries, shared.NewOutboxEntry(event, routable.RoutingKey(), payload, p.maxRetries))
	}

	return NewGormOutboxRepository(tx).Save(ctx, entries...)
}

// SaveEvents implements the shared.OutboxEventSaver interface
func (p *OutboxPublisher) SaveEvents(ctx context.Context, txProvider any, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, ok := txProvider.(*gorm.DB)
	if !ok {
		return fmt.Errorf("txProvider must be a *gorm.DB, got %T", txProvider)
	}
	return p.PublishWithTx(ctx, tx, events...)
}

// Sink binds the publisher to tx for repositories that expose an EventSink
func (p *OutboxPublisher) Sink(tx *gorm.DB) payment.EventSink {
	return &txSink{publisher: p, tx: tx}
}

type txSink struct {
	publisher *OutboxPublisher
	tx        *gorm.DB
}

func (s *txSink) Save(ctx context.Context, events ...shared.DomainEvent) error {
	return s.publisher.PublishWithTx(ctx, s.tx, events...)
}

// Ensure OutboxPublisher implements OutboxEventSaver
var _ shared.OutboxEventSaver = (*OutboxPublisher)(nil)
