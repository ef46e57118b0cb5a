package event

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/telemetry"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	Retry            shared.RetryPolicy
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
	// ClaimLease is how long an entry may stay PROCESSING before another
	// pass takes it back. Zero disables reclaiming.
	ClaimLease time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     2 * time.Second,
		Retry:            shared.DefaultRetryPolicy(),
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
		ClaimLease:       5 * time.Minute,
	}
}

// OutboxProcessor relays outbox entries to the message broker. Delivery is
// at-least-once: a crash between Publish and Update re-sends the entry once
// its claim lease runs out, and consumers dedupe on the correlation id.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	publisher  shared.MessagePublisher
	serializer *EventSerializer
	config     OutboxProcessorConfig
	logger     *zap.Logger
	metrics    *telemetry.PaymentMetrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// OutboxProcessorOption configures an OutboxProcessor
type OutboxProcessorOption func(*OutboxProcessor)

// WithProcessorMetrics records published and dead entries
func WithProcessorMetrics(m *telemetry.PaymentMetrics) OutboxProcessorOption {
	return func(p *OutboxProcessor) {
		p.metrics = m
	}
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	repo shared.OutboxRepository,
	publisher shared.MessagePublisher,
	serializer *EventSerializer,
	config OutboxProcessorConfig,
	logger *zap.Logger,
	opts ...OutboxProcessorOption,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}
	p := &OutboxProcessor{
		repo:       repo,
		publisher:  publisher,
		serializer: serializer,
		config:     config,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start starts the background processing
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Int("max_retries", p.config.Retry.MaxRetries),
	)
	return nil
}

// Stop gracefully stops the processor
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *OutboxProcessor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce takes back expired claims, then relays one batch of pending
// entries and one batch of entries due for retry. It returns how many entries
// were published.
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) int {
	sent := 0
	p.reclaimStale(ctx)

	pending, err := p.repo.FindPending(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find pending entries", zap.Error(err))
		return sent
	}
	if len(pending) > 0 {
		sent += p.processEntries(ctx, pending)
	}

	retryable, err := p.repo.FindRetryable(ctx, time.Now(), p.config.BatchSize)
	if err != nil {
		p.logger.Error("failed to find retryable entries", zap.Error(err))
		return sent
	}
	if len(retryable) > 0 {
		sent += p.processEntries(ctx, retryable)
	}
	return sent
}

func (p *OutboxProcessor) reclaimStale(ctx context.Context) {
	if p.config.ClaimLease <= 0 {
		return
	}
	reclaimed, err := p.repo.ReclaimStale(ctx, time.Now().Add(-p.config.ClaimLease))
	if err != nil {
		p.logger.Error("failed to reclaim stale entries", zap.Error(err))
		return
	}
	if reclaimed > 0 {
		p.logger.Warn("reclaimed outbox entries with expired claims",
			zap.Int64("reclaimed", reclaimed),
			zap.Duration("claim_lease", p.config.ClaimLease),
		)
	}
}

func (p *OutboxProcessor) processEntries(ctx context.Context, entries []*shared.OutboxEntry) int {
	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	claimed, err := p.repo.MarkProcessing(ctx, ids)
	if err != nil {
		p.logger.Error("failed to mark entries as processing", zap.Error(err))
		return 0
	}

	sent := 0
	for _, entry := range claimed {
		if p.processEntry(ctx, entry) {
			sent++
		}
	}
	return sent
}

func (p *OutboxProcessor) processEntry(ctx context.Context, entry *shared.OutboxEntry) bool {
	if err := p.serializer.CheckRoute(entry.EventType, entry.RoutingKey); err != nil {
		p.fail(ctx, entry, err)
		return false
	}

	ctx, span := telemetry.StartSpan(ctx, "outbox.publish",
		telemetry.WithAttribute(telemetry.SpanAttrRoutingKey, entry.RoutingKey),
	)
	defer span.End()

	if err := p.publisher.Publish(ctx, entry.RoutingKey, MessageFromEntry(entry)); err != nil {
		telemetry.RecordError(span, err)
		p.fail(ctx, entry, err)
		return false
	}

	entry.MarkSent()
	p.metrics.OutboxPublished(ctx, entry.RoutingKey)
	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("failed to mark entry as sent",
			zap.String("event_id", entry.EventID.String()),
			zap.Error(err),
		)
		return true
	}
	p.logger.Debug("event published",
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("routing_key", entry.RoutingKey),
	)
	return true
}

func (p *OutboxProcessor) fail(ctx context.Context, entry *shared.OutboxEntry, cause error) {
	p.logger.Error("failed to publish event",
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
		zap.String("routing_key", entry.RoutingKey),
		zap.Int("attempt", entry.RetryCount+1),
		zap.Error(cause),
	)
	entry.MarkFailed(cause.Error(), p.config.Retry)
	if entry.IsDead() {
		p.metrics.OutboxDead(ctx, entry.RoutingKey)
		p.logger.Warn("outbox entry is dead, operator action required",
			zap.String("entry_id", entry.ID.String()),
			zap.String("event_id", entry.EventID.String()),
			zap.String("event_type", entry.EventType),
			zap.String("correlation_id", entry.CorrelationID),
			zap.String("aggregate_id", entry.AggregateID.String()),
			zap.Int("retry_count", entry.RetryCount),
			zap.String("last_error", entry.LastError),
		)
	}
	if err := p.repo.Update(ctx, entry); err != nil {
		p.logger.Error("failed to update entry", zap.Error(err))
	}
}

// MessageFromEntry builds the broker envelope for an outbox entry. The event
// id doubles as the message id so redeliveries keep it.
func MessageFromEntry(entry *shared.OutboxEntry) *shared.Message {
	return &shared.Message{
		ID:            entry.EventID.String(),
		RoutingKey:    entry.RoutingKey,
		CorrelationID: entry.CorrelationID,
		EventType:     entry.EventType,
		Body:          entry.Payload,
		Headers: map[string]string{
			shared.HeaderMessageID:     entry.EventID.String(),
			shared.HeaderCorrelationID: entry.CorrelationID,
			shared.HeaderEventType:     entry.EventType,
			shared.HeaderOccurredAt:    strconv.FormatInt(entry.CreatedAt.UnixMilli(), 10),
		},
		PublishedAt: time.Now(),
	}
}

func (p *OutboxProcessor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanup(ctx)
		}
	}
}

func (p *OutboxProcessor) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to cleanup old entries", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("cleaned up old outbox entries",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
