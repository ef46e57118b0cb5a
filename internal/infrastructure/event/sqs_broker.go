package event

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// SQSAPI is the subset of the SQS client the broker uses
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// SQSConfig configures the SQS broker
type SQSConfig struct {
	BrokerConfig
	// QueueURLPrefix + queue name is the queue URL. Queue names are routing
	// keys with dots replaced by dashes.
	QueueURLPrefix string
	// WaitTime is the long-poll duration, at most 20s
	WaitTime time.Duration
	// MaxMessages per receive, at most 10
	MaxMessages int32
}

// SQSBroker is a Broker on Amazon SQS with one queue per routing key. The
// receive count SQS reports drives dead-lettering, so the broker works
// without a redrive policy on the queue.
type SQSBroker struct {
	brokerBase
	client SQSAPI
	cfg    SQSConfig

	mu      sync.Mutex
	subs    map[string]shared.MessageHandler
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSQSClient builds an SQS client from the default AWS credential chain.
// A non-empty endpoint points the client at a local emulator.
func NewSQSClient(cfg aws.Config, endpoint string) *sqs.Client {
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// NewSQSBroker creates an SQS broker
func NewSQSBroker(client SQSAPI, cfg SQSConfig, opts ...BrokerOption) *SQSBroker {
	if cfg.WaitTime <= 0 || cfg.WaitTime > 20*time.Second {
		cfg.WaitTime = 20 * time.Second
	}
	if cfg.MaxMessages <= 0 || cfg.MaxMessages > 10 {
		cfg.MaxMessages = 10
	}
	base := newBrokerBase(cfg.BrokerConfig, opts)
	cfg.BrokerConfig = base.config
	return &SQSBroker{
		brokerBase: base,
		client:     client,
		cfg:        cfg,
		subs:       make(map[string]shared.MessageHandler),
	}
}

// QueueURL returns the queue URL for a routing key
func (b *SQSBroker) QueueURL(routingKey string) string {
	return b.cfg.QueueURLPrefix + strings.ReplaceAll(routingKey, ".", "-")
}

// Publish sends msg to the routing key's queue
func (b *SQSBroker) Publish(ctx context.Context, routingKey string, msg *shared.Message) error {
	publishedAt := msg.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}
	// SQS rejects empty attribute values
	attrs := make(map[string]types.MessageAttributeValue, len(msg.Headers)+4)
	for k, v := range msg.Headers {
		if v != "" {
			attrs[k] = stringAttr(v)
		}
	}
	for k, v := range map[string]string{
		shared.HeaderMessageID:     msg.ID,
		shared.HeaderCorrelationID: msg.CorrelationID,
		shared.HeaderEventType:     msg.EventType,
		streamFieldPublishedAt:     strconv.FormatInt(publishedAt.UnixMilli(), 10),
	} {
		if v != "" {
			attrs[k] = stringAttr(v)
		}
	}

	_, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(b.QueueURL(routingKey)),
		MessageBody:       aws.String(string(msg.Body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sqs send %s: %w", routingKey, err)
	}
	return nil
}

// Subscribe registers the handler for routingKey. One handler per key.
func (b *SQSBroker) Subscribe(routingKey string, handler shared.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return errors.New("sqs broker: subscribe after start")
	}
	if _, ok := b.subs[routingKey]; ok {
		return fmt.Errorf("sqs broker: %s already has a handler", routingKey)
	}
	b.subs[routingKey] = handler
	return nil
}

// Start launches one long-polling receiver per subscribed queue
func (b *SQSBroker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.started = true
	for key, handler := range b.subs {
		b.wg.Add(1)
		go b.receiveLoop(runCtx, key, handler)
	}
	b.logger.Info("sqs broker started",
		zap.String("queue_url_prefix", b.cfg.QueueURLPrefix),
		zap.Int("queues", len(b.subs)),
	)
	return nil
}

// Stop stops all receivers
func (b *SQSBroker) Stop(ctx context.Context) error {
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
		b.logger.Info("sqs broker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *SQSBroker) receiveLoop(ctx context.Context, routingKey string, handler shared.MessageHandler) {
	defer b.wg.Done()
	for ctx.Err() == nil {
		if _, err := b.ReceiveOnce(ctx, routingKey, handler); err != nil && ctx.Err() == nil {
			b.logger.Error("sqs receive failed", zap.String("routing_key", routingKey), zap.Error(err))
			sleepCtx(ctx, b.config.RedeliveryDelay)
		}
	}
}

// ReceiveOnce performs one receive call and handles what it returns
func (b *SQSBroker) ReceiveOnce(ctx context.Context, routingKey string, handler shared.MessageHandler) (int, error) {
	queueURL := b.QueueURL(routingKey)
	out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:                    aws.String(queueURL),
		MaxNumberOfMessages:         b.cfg.MaxMessages,
		WaitTimeSeconds:             int32(b.cfg.WaitTime / time.Second),
		MessageAttributeNames:       []string{"All"},
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeNameApproximateReceiveCount},
	})
	if err != nil {
		return 0, err
	}
	for _, m := range out.Messages {
		b.process(ctx, routingKey, queueURL, handler, m)
	}
	return len(out.Messages), nil
}

func (b *SQSBroker) process(ctx context.Context, routingKey, queueURL string, handler shared.MessageHandler, m types.Message) {
	msg := messageFromSQS(routingKey, m)

	if b.config.expired(msg, time.Now()) {
		b.logDeadLetter(ctx, msg, DeadLetterReasonExpired, nil)
		b.moveToDLQ(ctx, routingKey, queueURL, msg, m, DeadLetterReasonExpired)
		return
	}

	herr := b.deliver(ctx, handler, msg)
	if herr == nil {
		b.delete(ctx, queueURL, m)
		return
	}

	if msg.Attempt >= b.config.MaxDeliveries {
		b.logDeadLetter(ctx, msg, DeadLetterReasonRejected, herr)
		b.moveToDLQ(ctx, routingKey, queueURL, msg, m, DeadLetterReasonRejected)
		return
	}

	// Make the message visible again after the redelivery delay
	_, err := b.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(queueURL),
		ReceiptHandle:     m.ReceiptHandle,
		VisibilityTimeout: int32(b.config.RedeliveryDelay / time.Second),
	})
	if err != nil {
		b.logger.Warn("failed to reset visibility", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func (b *SQSBroker) moveToDLQ(ctx context.Context, routingKey, queueURL string, msg *shared.Message, m types.Message, reason string) {
	dead := deadLetterCopy(msg, reason)
	dead.Headers["attempts"] = strconv.Itoa(msg.Attempt)
	if err := b.Publish(ctx, b.config.DeadLetterKey(routingKey), dead); err != nil {
		// Keep the message; it comes back after the visibility timeout.
		b.logger.Error("failed to write dead letter", zap.String("routing_key", routingKey), zap.Error(err))
		return
	}
	b.delete(ctx, queueURL, m)
}

func (b *SQSBroker) delete(ctx context.Context, queueURL string, m types.Message) {
	_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		b.logger.Error("sqs delete failed", zap.String("message_id", aws.ToString(m.MessageId)), zap.Error(err))
	}
}

func messageFromSQS(routingKey string, m types.Message) *shared.Message {
	msg := &shared.Message{
		ID:         aws.ToString(m.MessageId),
		RoutingKey: routingKey,
		Body:       []byte(aws.ToString(m.Body)),
		Headers:    make(map[string]string, len(m.MessageAttributes)),
		Attempt:    1,
	}
	for k, v := range m.MessageAttributes {
		msg.Headers[k] = aws.ToString(v.StringValue)
	}
	if id := msg.Headers[shared.HeaderMessageID]; id != "" {
		msg.ID = id
	}
	msg.CorrelationID = msg.Headers[shared.HeaderCorrelationID]
	msg.EventType = msg.Headers[shared.HeaderEventType]
	if ms, err := strconv.ParseInt(msg.Headers[streamFieldPublishedAt], 10, 64); err == nil {
		msg.PublishedAt = time.UnixMilli(ms)
	}
	if n, err := strconv.Atoi(m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil && n > 0 {
		msg.Attempt = n
	}
	return msg
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

var _ shared.Broker = (*SQSBroker)(nil)
