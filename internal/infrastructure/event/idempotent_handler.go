package event

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// IdempotencyMetrics tracks idempotency-related statistics
type IdempotencyMetrics struct {
	// MessagesProcessed is the number of messages handled for the first time
	MessagesProcessed atomic.Int64

	// MessagesDuplicate is the number of redeliveries that were skipped
	MessagesDuplicate atomic.Int64

	// MessagesFailed is the number of messages whose handler returned an error
	MessagesFailed atomic.Int64
}

// Stats returns a snapshot of the current metrics
func (m *IdempotencyMetrics) Stats() IdempotencyStats {
	return IdempotencyStats{
		MessagesProcessed: m.MessagesProcessed.Load(),
		MessagesDuplicate: m.MessagesDuplicate.Load(),
		MessagesFailed:    m.MessagesFailed.Load(),
	}
}

// IdempotencyStats is a snapshot of idempotency metrics
type IdempotencyStats struct {
	MessagesProcessed int64 `json:"messages_processed"`
	MessagesDuplicate int64 `json:"messages_duplicate"`
	MessagesFailed    int64 `json:"messages_failed"`
}

// IdempotentHandler wraps a MessageHandler so each correlation id is handled
// once, however many times the broker delivers it.
type IdempotentHandler struct {
	handler shared.MessageHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	metrics *IdempotencyMetrics
	prefix  string
}

// IdempotentHandlerOption is a functional option for IdempotentHandler
type IdempotentHandlerOption func(*IdempotentHandler)

// WithIdempotencyConfig sets the idempotency configuration
func WithIdempotencyConfig(config shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.config = config
	}
}

// WithIdempotencyMetrics sets the metrics collector
func WithIdempotencyMetrics(metrics *IdempotencyMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.metrics = metrics
	}
}

// WithConsumerName namespaces the dedup keys so two consumers of the same
// routing key each see every message once.
func WithConsumerName(name string) IdempotentHandlerOption {
	return func(h *IdempotentHandler) {
		h.prefix = name + ":"
	}
}

// NewIdempotentHandler creates a new idempotent handler wrapper
func NewIdempotentHandler(
	handler shared.MessageHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		handler: handler,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
		metrics: &IdempotencyMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes msg unless its correlation id was already handled. A
// failing handler releases the key so the redelivery runs again.
func (h *IdempotentHandler) Handle(ctx context.Context, msg *shared.Message) error {
	if !h.config.Enabled || msg.CorrelationID == "" {
		return h.handler.Handle(ctx, msg)
	}

	key := h.prefix + msg.CorrelationID

	isNew, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	if err != nil {
		h.logger.Warn("failed to check idempotency, processing anyway",
			zap.String("correlation_id", msg.CorrelationID),
			zap.String("routing_key", msg.RoutingKey),
			zap.Error(err),
		)
	} else if !isNew {
		h.metrics.MessagesDuplicate.Add(1)
		h.logger.Debug("duplicate message skipped",
			zap.String("correlation_id", msg.CorrelationID),
			zap.String("message_id", msg.ID),
			zap.Int("attempt", msg.Attempt),
		)
		return nil
	}

	if err := h.handler.Handle(ctx, msg); err != nil {
		h.metrics.MessagesFailed.Add(1)
		h.logger.Error("message handler failed",
			zap.String("correlation_id", msg.CorrelationID),
			zap.String("routing_key", msg.RoutingKey),
			zap.Int("attempt", msg.Attempt),
			zap.Error(err),
		)
		if isNew {
			if uerr := h.store.Unmark(ctx, key); uerr != nil {
				h.logger.Warn("failed to release idempotency key",
					zap.String("correlation_id", msg.CorrelationID),
					zap.Error(uerr),
				)
			}
		}
		return err
	}

	h.metrics.MessagesProcessed.Add(1)
	return nil
}

// GetMetrics returns the metrics for this handler
func (h *IdempotentHandler) GetMetrics() *IdempotencyMetrics {
	return h.metrics
}

var _ shared.MessageHandler = (*IdempotentHandler)(nil)
