package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	reconapp "github.com/Kylin-001/HKYG-sub002/internal/application/reconciliation"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// MockReconciler is a mock implementation of Reconciler
type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, date time.Time, paymentType payment.PaymentType) (*reconapp.BatchDTO, error) {
	args := m.Called(ctx, date, paymentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconapp.BatchDTO), args.Error(1)
}

type staticTypes []payment.PaymentType

func (s staticTypes) Types() []payment.PaymentType { return s }

var shanghai = time.FixedZone("UTC+8", 8*3600)

func newTestTrigger(t *testing.T, reconciler Reconciler, types ...payment.PaymentType) *ReconciliationTrigger {
	t.Helper()
	cfg := DefaultReconciliationTriggerConfig()
	cfg.Hour = 2
	cfg.Minute = 30
	cfg.Location = shanghai
	trigger, err := NewReconciliationTrigger(cfg, reconciler, staticTypes(types), zaptest.NewLogger(t))
	require.NoError(t, err)
	return trigger
}

func TestDefaultReconciliationTriggerConfig(t *testing.T) {
	cfg := DefaultReconciliationTriggerConfig()

	assert.Equal(t, 2, cfg.Hour)
	assert.Equal(t, 0, cfg.Minute)
	assert.Equal(t, time.Minute, cfg.CheckInterval)
	assert.Equal(t, 30*time.Minute, cfg.JobTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestReconciliationTriggerConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ReconciliationTriggerConfig)
	}{
		{"hour too large", func(c *ReconciliationTriggerConfig) { c.Hour = 24 }},
		{"negative minute", func(c *ReconciliationTriggerConfig) { c.Minute = -1 }},
		{"zero interval", func(c *ReconciliationTriggerConfig) { c.CheckInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultReconciliationTriggerConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	_, err := NewReconciliationTrigger(ReconciliationTriggerConfig{Hour: 30}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestReconciliationTrigger_ShouldRun(t *testing.T) {
	trigger := newTestTrigger(t, new(MockReconciler))

	tests := []struct {
		name     string
		time     time.Time
		expected bool
	}{
		{"Exact match in zone", time.Date(2026, 1, 15, 2, 30, 0, 0, shanghai), true},
		{"Same instant in UTC", time.Date(2026, 1, 14, 18, 30, 0, 0, time.UTC), true},
		{"Wrong hour", time.Date(2026, 1, 15, 3, 30, 0, 0, shanghai), false},
		{"Wrong minute", time.Date(2026, 1, 15, 2, 31, 0, 0, shanghai), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, trigger.shouldRun(tt.time))
		})
	}
}

func TestReconciliationTrigger_RunsYesterdayOncePerDay(t *testing.T) {
	reconciler := new(MockReconciler)
	trigger := newTestTrigger(t, reconciler, payment.PaymentTypeGatewayA)

	yesterday := time.Date(2026, 1, 14, 2, 30, 10, 0, shanghai)
	reconciler.On("Reconcile", mock.Anything, yesterday, payment.PaymentTypeGatewayA).
		Return(&reconapp.BatchDTO{BatchNo: "RCB1"}, nil).Once()

	trigger.now = func() time.Time { return time.Date(2026, 1, 15, 2, 30, 10, 0, shanghai) }
	trigger.checkAndTrigger(context.Background())
	trigger.checkAndTrigger(context.Background())

	reconciler.AssertNumberOfCalls(t, "Reconcile", 1)
	assert.Equal(t, "2026-01-15", trigger.GetStatus()["last_run_date"])

	trigger.now = func() time.Time { return time.Date(2026, 1, 15, 9, 0, 0, 0, shanghai) }
	trigger.checkAndTrigger(context.Background())
	reconciler.AssertNumberOfCalls(t, "Reconcile", 1)
}

func TestReconciliationTrigger_RunFor(t *testing.T) {
	reconciler := new(MockReconciler)
	trigger := newTestTrigger(t, reconciler,
		payment.PaymentTypeGatewayA, payment.PaymentTypeGatewayB, payment.PaymentTypeBalance)
	day := time.Date(2026, 1, 14, 0, 0, 0, 0, shanghai)

	reconciler.On("Reconcile", mock.Anything, day, payment.PaymentTypeGatewayA).
		Return(&reconapp.BatchDTO{BatchNo: "RCB-A"}, nil)
	reconciler.On("Reconcile", mock.Anything, day, payment.PaymentTypeGatewayB).
		Return(nil, shared.NewReconciliationConflictError("already running"))
	reconciler.On("Reconcile", mock.Anything, day, payment.PaymentTypeBalance).
		Return(nil, errors.New("statement unavailable"))

	summary, err := trigger.RunFor(context.Background(), day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BALANCE: statement unavailable")
	assert.Equal(t, "2026-01-14", summary.Date)
	assert.Equal(t, []string{"RCB-A"}, summary.Completed)
	assert.Equal(t, []payment.PaymentType{payment.PaymentTypeGatewayB}, summary.Skipped)
	assert.Len(t, summary.Failed, 1)
	reconciler.AssertExpectations(t)
}

func TestReconciliationTrigger_RejectsOverlappingRuns(t *testing.T) {
	reconciler := new(MockReconciler)
	trigger := newTestTrigger(t, reconciler, payment.PaymentTypeGatewayA)

	entered := make(chan struct{})
	release := make(chan struct{})
	reconciler.On("Reconcile", mock.Anything, mock.Anything, payment.PaymentTypeGatewayA).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(&reconapp.BatchDTO{BatchNo: "RCB1"}, nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = trigger.RunFor(context.Background(), time.Now())
	}()
	<-entered

	_, err := trigger.RunFor(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(release)
	wg.Wait()
}

func TestReconciliationTrigger_TriggerNowRequiresStart(t *testing.T) {
	reconciler := new(MockReconciler)
	trigger := newTestTrigger(t, reconciler, payment.PaymentTypeGatewayA)

	_, err := trigger.TriggerNow(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerNotRunning)

	reconciler.On("Reconcile", mock.Anything, mock.Anything, payment.PaymentTypeGatewayA).
		Return(&reconapp.BatchDTO{BatchNo: "RCB1"}, nil)
	require.NoError(t, trigger.Start(context.Background()))
	defer func() { _ = trigger.Stop(context.Background()) }()

	summary, err := trigger.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"RCB1"}, summary.Completed)
	assert.Equal(t, true, trigger.GetStatus()["is_running"])
}

func TestReconciliationTrigger_StartStopIdempotent(t *testing.T) {
	trigger := newTestTrigger(t, new(MockReconciler))
	ctx := context.Background()

	require.NoError(t, trigger.Start(ctx))
	require.NoError(t, trigger.Start(ctx))
	require.NoError(t, trigger.Stop(ctx))
	require.NoError(t, trigger.Stop(ctx))
	assert.Equal(t, false, trigger.GetStatus()["is_running"])
}
