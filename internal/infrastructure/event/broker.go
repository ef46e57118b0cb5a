package event

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/logger"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/telemetry"
)

// Dead-letter reasons
const (
	DeadLetterReasonRejected = "rejected"
	DeadLetterReasonExpired  = "expired"
)

// Headers added to dead-lettered messages
const (
	HeaderDeathReason        = "x-death-reason"
	HeaderOriginalRoutingKey = "x-original-routing-key"
)

// BrokerConfig is shared by every broker implementation
type BrokerConfig struct {
	// MaxDeliveries is how many times a message is handed to a handler
	// before it is dead-lettered.
	MaxDeliveries int
	// RedeliveryDelay is the wait between a failed delivery and the next one
	RedeliveryDelay time.Duration
	// MessageTTL dead-letters messages older than this at delivery time.
	// Zero disables expiry.
	MessageTTL time.Duration
	// DLQSuffix is appended to a routing key to name its dead-letter queue
	DLQSuffix string
}

// DefaultBrokerConfig returns 3 deliveries, a 1s redelivery delay, a 60s TTL
// and ".dlq" dead-letter queues.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		MaxDeliveries:   3,
		RedeliveryDelay: time.Second,
		MessageTTL:      60 * time.Second,
		DLQSuffix:       ".dlq",
	}
}

func (c BrokerConfig) withDefaults() BrokerConfig {
	d := DefaultBrokerConfig()
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = d.MaxDeliveries
	}
	if c.RedeliveryDelay <= 0 {
		c.RedeliveryDelay = d.RedeliveryDelay
	}
	if c.DLQSuffix == "" {
		c.DLQSuffix = d.DLQSuffix
	}
	return c
}

// DeadLetterKey returns the routing key dead letters of routingKey go to
func (c BrokerConfig) DeadLetterKey(routingKey string) string {
	return routingKey + c.DLQSuffix
}

// expired reports whether msg outlived the TTL
func (c BrokerConfig) expired(msg *shared.Message, now time.Time) bool {
	return c.MessageTTL > 0 && !msg.PublishedAt.IsZero() && now.Sub(msg.PublishedAt) > c.MessageTTL
}

// BrokerOption configures the ambient parts of a broker
type BrokerOption func(*brokerBase)

// WithBrokerLogger sets the broker logger
func WithBrokerLogger(l *zap.Logger) BrokerOption {
	return func(b *brokerBase) {
		b.logger = l
	}
}

// WithBrokerMetrics counts dead-lettered messages
func WithBrokerMetrics(m *telemetry.PaymentMetrics) BrokerOption {
	return func(b *brokerBase) {
		b.metrics = m
	}
}

type brokerBase struct {
	config  BrokerConfig
	logger  *zap.Logger
	metrics *telemetry.PaymentMetrics
}

func newBrokerBase(cfg BrokerConfig, opts []BrokerOption) brokerBase {
	b := brokerBase{config: cfg.withDefaults(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// deliver runs handler with the message's correlation id bound to the
// context logger. A panicking handler counts as a failed delivery.
func (b *brokerBase) deliver(ctx context.Context, handler shared.MessageHandler, msg *shared.Message) (err error) {
	l := b.logger.With(
		zap.String("routing_key", msg.RoutingKey),
		zap.String("correlation_id", msg.CorrelationID),
		zap.String("message_id", msg.ID),
	)
	ctx = logger.WithContext(logger.WithRequestID(ctx, msg.CorrelationID), l)

	ctx, span := telemetry.StartSpan(ctx, "broker.deliver",
		telemetry.WithAttribute(telemetry.SpanAttrRoutingKey, msg.RoutingKey),
		telemetry.WithAttribute("messaging.delivery_attempt", msg.Attempt),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			l.Error("message handler panicked",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("handler panic: %v", r)
		}
		telemetry.RecordError(span, err)
	}()

	return handler.Handle(ctx, msg)
}

func (b *brokerBase) logDeadLetter(ctx context.Context, msg *shared.Message, reason string, cause error) {
	b.metrics.ConsumerDeadLetter(ctx, msg.RoutingKey)
	fields := []zap.Field{
		zap.String("routing_key", msg.RoutingKey),
		zap.String("dead_letter_key", b.config.DeadLetterKey(msg.RoutingKey)),
		zap.String("correlation_id", msg.CorrelationID),
		zap.String("message_id", msg.ID),
		zap.Int("attempt", msg.Attempt),
		zap.String("reason", reason),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	b.logger.Warn("message dead-lettered", fields...)
}

// deadLetterCopy returns the message as routed to the dead-letter queue
func deadLetterCopy(msg *shared.Message, reason string) *shared.Message {
	dead := cloneMessage(msg)
	dead.Headers[HeaderDeathReason] = reason
	dead.Headers[HeaderOriginalRoutingKey] = msg.RoutingKey
	return dead
}

func cloneMessage(msg *shared.Message) *shared.Message {
	c := *msg
	c.Headers = make(map[string]string, len(msg.Headers))
	for k, v := range msg.Headers {
		c.Headers[k] = v
	}
	return &c
}
