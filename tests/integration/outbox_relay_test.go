package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	paymentapp "github.com/Kylin-001/HKYG-sub002/internal/application/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/cache"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/event"
	infrapayment "github.com/Kylin-001/HKYG-sub002/internal/infrastructure/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/persistence"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/persistence/models"
	"github.com/Kylin-001/HKYG-sub002/tests/testutil"
)

type relayFixture struct {
	tdb       *TestDB
	ledger    *paymentapp.LedgerService
	broker    *event.MemoryBroker
	processor *event.OutboxProcessor
	recorder  *testutil.MessageRecorder
	consumer  *event.IdempotentHandler
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()
	tdb := NewTestDB(t)
	log := zaptest.NewLogger(t)

	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	store := persistence.NewGormLedgerStore(tdb.DB, event.NewOutboxPublisher(serializer, 5))

	broker := event.NewMemoryBroker(event.BrokerConfig{
		MaxDeliveries:   3,
		RedeliveryDelay: 10 * time.Millisecond,
		DLQSuffix:       ".dlq",
	}, event.WithBrokerLogger(log))

	recorder := testutil.NewMessageRecorder()
	consumer := event.NewIdempotentHandler(recorder, cache.NewInMemoryIdempotencyStore(), log,
		event.WithConsumerName("integration"))
	for _, key := range payment.AllRoutingKeys() {
		require.NoError(t, broker.Subscribe(key, consumer))
	}
	require.NoError(t, broker.Start(context.Background()))
	t.Cleanup(func() { _ = broker.Stop(context.Background()) })

	cfg := event.DefaultOutboxProcessorConfig()
	cfg.CleanupEnabled = false
	processor := event.NewOutboxProcessor(event.NewGormOutboxRepository(tdb.DB), broker, serializer, cfg, log)

	ledger := paymentapp.NewLedgerService(paymentapp.LedgerServiceConfig{
		Store:    store,
		Gateways: infrapayment.NewRegistry(),
		Locker:   cache.NewInMemoryLocker(),
		Tokens:   cache.NewTokenIssuer(cache.NewInMemoryIdempotencyStore(), "integration-secret"),
		Logger:   log,
	})
	newPendingPayment(t, store, "P-RELAY")

	return &relayFixture{
		tdb:       tdb,
		ledger:    ledger,
		broker:    broker,
		processor: processor,
		recorder:  recorder,
		consumer:  consumer,
	}
}

func (f *relayFixture) outboxStatus(t *testing.T, routingKey string) shared.OutboxStatus {
	t.Helper()
	var entry models.OutboxEntryModel
	require.NoError(t, f.tdb.DB.Where("routing_key = ?", routingKey).First(&entry).Error)
	return shared.OutboxStatus(entry.Status)
}

func TestOutboxRelay_ConfirmedPaymentReachesConsumer(t *testing.T) {
	f := newRelayFixture(t)
	ctx := testutil.ContextWithTimeout(t, 30*time.Second)

	_, err := f.ledger.ConfirmPaid(ctx, "P-RELAY", "TX-RELAY", time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusPending, f.outboxStatus(t, payment.RoutingKeyPaymentSuccess))

	assert.Equal(t, 1, f.processor.ProcessOnce(ctx))
	require.True(t, testutil.WaitForMessageCount(t, f.recorder, 1, 5*time.Second))

	msg := f.recorder.Handled()[0]
	assert.Equal(t, payment.RoutingKeyPaymentSuccess, msg.RoutingKey)
	assert.NotEmpty(t, msg.CorrelationID)
	assert.Equal(t, shared.OutboxStatusSent, f.outboxStatus(t, payment.RoutingKeyPaymentSuccess))

	// nothing left to relay
	assert.Zero(t, f.processor.ProcessOnce(ctx))
}

func TestOutboxRelay_RedeliveredMessageIsHandledOnce(t *testing.T) {
	f := newRelayFixture(t)
	ctx := testutil.ContextWithTimeout(t, 30*time.Second)

	_, err := f.ledger.ConfirmPaid(ctx, "P-RELAY", "TX-RELAY", time.Now().UTC())
	require.NoError(t, err)
	f.processor.ProcessOnce(ctx)
	require.True(t, testutil.WaitForMessageCount(t, f.recorder, 1, 5*time.Second))

	dup := *f.recorder.Handled()[0]
	require.NoError(t, f.broker.Publish(ctx, dup.RoutingKey, &dup))

	testutil.RequireEventually(t, func() bool {
		return f.consumer.GetMetrics().Stats().MessagesDuplicate == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.recorder.HandledCount())
}

func TestOutboxRelay_FailingConsumerIsRetriedByBroker(t *testing.T) {
	f := newRelayFixture(t)
	ctx := testutil.ContextWithTimeout(t, 30*time.Second)
	f.recorder.FailNext(1, errors.New("downstream unavailable"))

	_, err := f.ledger.ConfirmPaid(ctx, "P-RELAY", "TX-RELAY", time.Now().UTC())
	require.NoError(t, err)
	f.processor.ProcessOnce(ctx)

	require.True(t, testutil.WaitForMessageCount(t, f.recorder, 2, 5*time.Second))
	testutil.AssertNever(t, func() bool {
		return len(f.broker.DeadLetters()) > 0
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.EqualValues(t, 1, f.consumer.GetMetrics().Stats().MessagesProcessed)
}
