package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// Stream entry fields
const (
	streamFieldID            = "id"
	streamFieldCorrelationID = "correlation_id"
	streamFieldEventType     = "event_type"
	streamFieldBody          = "body"
	streamFieldHeaders       = "headers"
	streamFieldPublishedAt   = "published_at"
)

// RedisStreamConfig configures the Redis Streams broker
type RedisStreamConfig struct {
	BrokerConfig
	// StreamPrefix is prepended to routing keys to name streams
	StreamPrefix string
	// Group is the consumer group all instances of the service join
	Group string
	// Consumer names this instance inside the group
	Consumer string
	// MaxLen caps each stream (approximate trimming)
	MaxLen int64
	// ReadCount and Block tune XREADGROUP
	ReadCount int64
	Block     time.Duration
}

// RedisStreamBroker is a Broker on Redis Streams. Each routing key is a
// stream and every subscription reads through the shared consumer group, so
// a message is handled by one instance. Unacknowledged messages are reclaimed
// after RedeliveryDelay; once their delivery count reaches MaxDeliveries they
// are copied to the dead-letter stream and acknowledged.
type RedisStreamBroker struct {
	brokerBase
	client *redis.Client
	cfg    RedisStreamConfig

	mu      sync.Mutex
	subs    map[string]shared.MessageHandler
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRedisStreamBroker creates a Redis Streams broker
func NewRedisStreamBroker(client *redis.Client, cfg RedisStreamConfig, opts ...BrokerOption) *RedisStreamBroker {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "paycore:stream:"
	}
	if cfg.Group == "" {
		cfg.Group = "paycore"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "consumer-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	if cfg.ReadCount <= 0 {
		cfg.ReadCount = 16
	}
	if cfg.Block <= 0 {
		cfg.Block = 2 * time.Second
	}
	base := newBrokerBase(cfg.BrokerConfig, opts)
	cfg.BrokerConfig = base.config
	return &RedisStreamBroker{
		brokerBase: base,
		client:     client,
		cfg:        cfg,
		subs:       make(map[string]shared.MessageHandler),
	}
}

// StreamName returns the stream for a routing key
func (b *RedisStreamBroker) StreamName(routingKey string) string {
	return b.cfg.StreamPrefix + routingKey
}

// Publish appends msg to the routing key's stream
func (b *RedisStreamBroker) Publish(ctx context.Context, routingKey string, msg *shared.Message) error {
	values, err := streamValues(msg)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: b.StreamName(routingKey),
		Values: values,
	}
	if b.cfg.MaxLen > 0 {
		args.MaxLen = b.cfg.MaxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	return nil
}

// Subscribe registers the handler for routingKey. One handler per key.
func (b *RedisStreamBroker) Subscribe(routingKey string, handler shared.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errors.New("redis broker: subscribe after start")
	}
	if _, ok := b.subs[routingKey]; ok {
		return fmt.Errorf("redis broker: %s already has a handler", routingKey)
	}
	b.subs[routingKey] = handler
	return nil
}

// Start creates the consumer groups and launches a reader and a reclaimer
// per subscribed stream.
func (b *RedisStreamBroker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	for key := range b.subs {
		if err := b.ensureGroup(ctx, b.StreamName(key)); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.started = true
	for key, handler := range b.subs {
		b.wg.Add(2)
		go b.readLoop(runCtx, key, handler)
		go b.reclaimLoop(runCtx, key, handler)
	}

	b.logger.Info("redis stream broker started",
		zap.String("group", b.cfg.Group),
		zap.String("consumer", b.cfg.Consumer),
		zap.Int("streams", len(b.subs)),
	)
	return nil
}

// Stop stops all readers
func (b *RedisStreamBroker) Stop(ctx context.Context) error {
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
		b.logger.Info("redis stream broker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *RedisStreamBroker) ensureGroup(ctx context.Context, stream string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, b.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s on %s: %w", b.cfg.Group, stream, err)
	}
	return nil
}

func (b *RedisStreamBroker) readLoop(ctx context.Context, routingKey string, handler shared.MessageHandler) {
	defer b.wg.Done()
	stream := b.StreamName(routingKey)

	for ctx.Err() == nil {
		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			Streams:  []string{stream, ">"},
			Count:    b.cfg.ReadCount,
			Block:    b.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			b.logger.Error("xreadgroup failed", zap.String("stream", stream), zap.Error(err))
			sleepCtx(ctx, b.config.RedeliveryDelay)
			continue
		}
		for _, s := range res {
			for _, xm := range s.Messages {
				b.process(ctx, routingKey, handler, xm, 1)
			}
		}
	}
}

// reclaimLoop takes over messages that stayed unacknowledged longer than
// RedeliveryDelay, including those of crashed consumers.
func (b *RedisStreamBroker) reclaimLoop(ctx context.Context, routingKey string, handler shared.MessageHandler) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.RedeliveryDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.ReclaimOnce(ctx, routingKey, handler); err != nil && ctx.Err() == nil {
				b.logger.Error("reclaim failed", zap.String("routing_key", routingKey), zap.Error(err))
			}
		}
	}
}

// ReclaimOnce processes one page of idle pending messages for routingKey
func (b *RedisStreamBroker) ReclaimOnce(ctx context.Context, routingKey string, handler shared.MessageHandler) error {
	stream := b.StreamName(routingKey)
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  b.cfg.Group,
		Idle:   b.config.RedeliveryDelay,
		Start:  "-",
		End:    "+",
		Count:  b.cfg.ReadCount,
	}).Result()
	if err != nil {
		return fmt.Errorf("xpending %s: %w", stream, err)
	}

	for _, p := range pending {
		claimed, err := b.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			MinIdle:  b.config.RedeliveryDelay,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			return fmt.Errorf("xclaim %s: %w", p.ID, err)
		}
		for _, xm := range claimed {
			// RetryCount counts deliveries before this claim
			b.process(ctx, routingKey, handler, xm, int(p.RetryCount)+1)
		}
	}
	return nil
}

func (b *RedisStreamBroker) process(ctx context.Context, routingKey string, handler shared.MessageHandler, xm redis.XMessage, attempt int) {
	stream := b.StreamName(routingKey)
	msg, err := messageFromStream(routingKey, xm)
	if err != nil {
		b.logger.Error("malformed stream entry, dead-lettering",
			zap.String("stream", stream),
			zap.String("entry_id", xm.ID),
			zap.Error(err),
		)
		b.moveToDLQ(ctx, routingKey, xm, DeadLetterReasonRejected, err, attempt)
		return
	}
	msg.Attempt = attempt

	if b.config.expired(msg, time.Now()) {
		b.logDeadLetter(ctx, msg, DeadLetterReasonExpired, nil)
		b.moveToDLQ(ctx, routingKey, xm, DeadLetterReasonExpired, nil, attempt)
		return
	}

	herr := b.deliver(ctx, handler, msg)
	if herr == nil {
		if err := b.client.XAck(ctx, stream, b.cfg.Group, xm.ID).Err(); err != nil {
			b.logger.Error("xack failed", zap.String("entry_id", xm.ID), zap.Error(err))
		}
		return
	}

	if attempt >= b.config.MaxDeliveries {
		b.logDeadLetter(ctx, msg, DeadLetterReasonRejected, herr)
		b.moveToDLQ(ctx, routingKey, xm, DeadLetterReasonRejected, herr, attempt)
	}
	// Otherwise the entry stays pending and reclaimLoop redelivers it.
}

func (b *RedisStreamBroker) moveToDLQ(ctx context.Context, routingKey string, xm redis.XMessage, reason string, cause error, attempt int) {
	values := make(map[string]any, len(xm.Values)+3)
	for k, v := range xm.Values {
		values[k] = v
	}
	values[HeaderDeathReason] = reason
	values[HeaderOriginalRoutingKey] = routingKey
	values["attempts"] = attempt
	if cause != nil {
		values["error"] = cause.Error()
	}

	dlq := b.StreamName(b.config.DeadLetterKey(routingKey))
	if err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: dlq, Values: values}).Err(); err != nil {
		// Leave it pending; the next reclaim tries again.
		b.logger.Error("failed to write dead letter", zap.String("stream", dlq), zap.Error(err))
		return
	}
	if err := b.client.XAck(ctx, b.StreamName(routingKey), b.cfg.Group, xm.ID).Err(); err != nil {
		b.logger.Error("xack after dead-letter failed", zap.String("entry_id", xm.ID), zap.Error(err))
	}
}

func streamValues(msg *shared.Message) (map[string]any, error) {
	headers, err := json.Marshal(msg.Headers)
	if err != nil {
		return nil, fmt.Errorf("marshal headers: %w", err)
	}
	publishedAt := msg.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}
	return map[string]any{
		streamFieldID:            msg.ID,
		streamFieldCorrelationID: msg.CorrelationID,
		streamFieldEventType:     msg.EventType,
		streamFieldBody:          string(msg.Body),
		streamFieldHeaders:       string(headers),
		streamFieldPublishedAt:   strconv.FormatInt(publishedAt.UnixMilli(), 10),
	}, nil
}

func messageFromStream(routingKey string, xm redis.XMessage) (*shared.Message, error) {
	str := func(k string) string {
		v, _ := xm.Values[k].(string)
		return v
	}
	body := str(streamFieldBody)
	if body == "" {
		return nil, errors.New("missing body")
	}
	msg := &shared.Message{
		ID:            str(streamFieldID),
		RoutingKey:    routingKey,
		CorrelationID: str(streamFieldCorrelationID),
		EventType:     str(streamFieldEventType),
		Body:          []byte(body),
		Headers:       map[string]string{},
	}
	if h := str(streamFieldHeaders); h != "" {
		if err := json.Unmarshal([]byte(h), &msg.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
	}
	if ms, err := strconv.ParseInt(str(streamFieldPublishedAt), 10, 64); err == nil {
		msg.PublishedAt = time.UnixMilli(ms)
	}
	return msg, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

var _ shared.Broker = (*RedisStreamBroker)(nil)
