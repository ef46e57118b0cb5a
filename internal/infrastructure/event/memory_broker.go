package event

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

const memoryQueueSize = 1024

// DeadLetter is a message that exhausted its delivery budget or expired
type DeadLetter struct {
	Message *shared.Message
	Reason  string
	Error   string
	At      time.Time
}

// MemoryBroker is an in-process Broker for development and tests. Each
// subscription has its own queue and worker; failed deliveries are retried
// after RedeliveryDelay and dead-lettered after MaxDeliveries.
type MemoryBroker struct {
	brokerBase

	mu          sync.RWMutex
	subs        map[string][]*memorySubscription
	deadLetters []DeadLetter
	started     bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type memorySubscription struct {
	routingKey string
	handler    shared.MessageHandler
	queue      chan *shared.Message
}

// NewMemoryBroker creates an in-memory broker
func NewMemoryBroker(cfg BrokerConfig, opts ...BrokerOption) *MemoryBroker {
	return &MemoryBroker{
		brokerBase: newBrokerBase(cfg, opts),
		subs:       make(map[string][]*memorySubscription),
	}
}

// Subscribe registers handler for routingKey. Every subscription receives its
// own copy of each message.
func (b *MemoryBroker) Subscribe(routingKey string, handler shared.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errors.New("memory broker: subscribe after start")
	}
	b.subs[routingKey] = append(b.subs[routingKey], &memorySubscription{
		routingKey: routingKey,
		handler:    handler,
		queue:      make(chan *shared.Message, memoryQueueSize),
	})
	return nil
}

// Publish enqueues msg for every subscription of routingKey. Messages with no
// subscriber are dropped.
func (b *MemoryBroker) Publish(ctx context.Context, routingKey string, msg *shared.Message) error {
	b.mu.RLock()
	subs := b.subs[routingKey]
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("no subscribers, message dropped", zap.String("routing_key", routingKey))
		return nil
	}

	for _, sub := range subs {
		c := cloneMessage(msg)
		c.RoutingKey = routingKey
		c.Attempt = 0
		if c.PublishedAt.IsZero() {
			c.PublishedAt = time.Now()
		}
		select {
		case sub.queue <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Start launches one worker per subscription
func (b *MemoryBroker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	b.started = true

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	for _, subs := range b.subs {
		for _, sub := range subs {
			b.wg.Add(1)
			go b.consume(ctx, sub)
		}
	}
	b.logger.Info("memory broker started",
		zap.Int("routing_keys", len(b.subs)),
		zap.Int("max_deliveries", b.config.MaxDeliveries),
	)
	return nil
}

// Stop stops the workers. Queued messages are discarded.
func (b *MemoryBroker) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
	}
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.logger.Info("memory broker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) consume(ctx context.Context, sub *memorySubscription) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-sub.queue:
			b.handle(ctx, sub, msg)
		}
	}
}

func (b *MemoryBroker) handle(ctx context.Context, sub *memorySubscription, msg *shared.Message) {
	isDLQ := strings.HasSuffix(sub.routingKey, b.config.DLQSuffix)
	for {
		msg.Attempt++
		if !isDLQ && b.config.expired(msg, time.Now()) {
			b.deadLetter(ctx, msg, DeadLetterReasonExpired, nil)
			return
		}

		err := b.deliver(ctx, sub.handler, msg)
		if err == nil {
			return
		}
		if isDLQ {
			b.logger.Error("dead-letter handler failed, message discarded",
				zap.String("routing_key", sub.routingKey),
				zap.String("correlation_id", msg.CorrelationID),
				zap.Error(err),
			)
			return
		}
		if msg.Attempt >= b.config.MaxDeliveries {
			b.deadLetter(ctx, msg, DeadLetterReasonRejected, err)
			return
		}

		timer := time.NewTimer(b.config.RedeliveryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (b *MemoryBroker) deadLetter(ctx context.Context, msg *shared.Message, reason string, cause error) {
	b.logDeadLetter(ctx, msg, reason, cause)

	dl := DeadLetter{Message: msg, Reason: reason, At: time.Now()}
	if cause != nil {
		dl.Error = cause.Error()
	}
	b.mu.Lock()
	b.deadLetters = append(b.deadLetters, dl)
	b.mu.Unlock()

	dead := deadLetterCopy(msg, reason)
	if err := b.Publish(ctx, b.config.DeadLetterKey(msg.RoutingKey), dead); err != nil {
		b.logger.Error("failed to route dead letter", zap.Error(err))
	}
}

// DeadLetters returns a copy of every dead-lettered message so far
func (b *MemoryBroker) DeadLetters() []DeadLetter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]DeadLetter, len(b.deadLetters))
	copy(out, b.deadLetters)
	return out
}

var _ shared.Broker = (*MemoryBroker)(nil)
