package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/cache"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 5, 1, 10, 0, 30, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// unreachableCounters fails every call
type unreachableCounters struct{}

var errCountersDown = errors.New("dial tcp: connection refused")

func (unreachableCounters) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errCountersDown
}
func (unreachableCounters) Count(context.Context, string) (int64, error) { return 0, errCountersDown }
func (unreachableCounters) SetFlag(context.Context, string, string, time.Duration) error {
	return errCountersDown
}
func (unreachableCounters) Flag(context.Context, string) (string, bool, error) {
	return "", false, errCountersDown
}
func (unreachableCounters) Delete(context.Context, string) error { return errCountersDown }

func newTestRiskControl(rc RiskConfig) (*RiskControl, *testClock) {
	clock := newTestClock()
	return NewRiskControl(cache.NewInMemoryCounterStore(clock.now), rc, nil, clock.now), clock
}

func subject(userID, amount, ip string) payment.RiskSubject {
	return payment.RiskSubject{
		UserID:      userID,
		OrderNo:     "ORD-" + userID,
		Amount:      decimal.RequireFromString(amount),
		PaymentType: payment.PaymentTypeGatewayA,
		ClientIP:    ip,
	}
}

func TestRiskControl_Amount(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestRiskControl(DefaultRiskConfig())

	tests := []struct {
		amount string
		level  payment.RiskLevel
		block  bool
	}{
		{"10.00", payment.RiskLow, false},
		{"1000.00", payment.RiskLow, false},
		{"1000.01", payment.RiskMedium, false},
		{"5000.00", payment.RiskMedium, false},
		{"5000.01", payment.RiskHigh, true},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got, err := rc.Assess(ctx, subject("u-1", tt.amount, ""))
			require.NoError(t, err)
			assert.Equal(t, tt.level, got.Level)
			assert.Equal(t, tt.block, got.Block)
			if tt.level > payment.RiskLow {
				assert.Contains(t, got.Details, "amount_risk")
			}
		})
	}
}

func TestRiskControl_Frequency(t *testing.T) {
	ctx := context.Background()

	t.Run("burst inside a minute blocks", func(t *testing.T) {
		rc, clock := newTestRiskControl(DefaultRiskConfig())
		s := subject("u-1", "10", "")
		for i := 0; i < 3; i++ {
			got, err := rc.Assess(ctx, s)
			require.NoError(t, err)
			require.False(t, got.Block, "attempt %d", i+1)
			require.NoError(t, rc.RecordAttempt(ctx, s))
		}

		got, err := rc.Assess(ctx, s)
		require.NoError(t, err)
		assert.True(t, got.Block)
		assert.Equal(t, payment.RiskHigh, got.Level)
		assert.Equal(t, "payment attempts are too frequent", got.Reason)

		other, err := rc.Assess(ctx, subject("u-2", "10", ""))
		require.NoError(t, err)
		assert.False(t, other.Block)

		clock.advance(time.Minute)
		got, err = rc.Assess(ctx, s)
		require.NoError(t, err)
		assert.False(t, got.Block)
		assert.Equal(t, payment.RiskLow, got.Level)
	})

	t.Run("busy hour is medium", func(t *testing.T) {
		cfg := DefaultRiskConfig()
		cfg.MaxAttemptsPerMinute = 0
		rc, _ := newTestRiskControl(cfg)
		s := subject("u-1", "10", "")
		for i := 0; i < cfg.MaxAttemptsPerHour; i++ {
			require.NoError(t, rc.RecordAttempt(ctx, s))
		}

		got, err := rc.Assess(ctx, s)
		require.NoError(t, err)
		assert.False(t, got.Block)
		assert.Equal(t, payment.RiskMedium, got.Level)
		assert.Equal(t, "many attempts in the last hour", got.Details["frequency_risk"])
	})

	t.Run("medium signals do not add up to a block", func(t *testing.T) {
		cfg := DefaultRiskConfig()
		cfg.MaxAttemptsPerMinute = 0
		rc, _ := newTestRiskControl(cfg)
		s := subject("u-1", "2000", "")
		for i := 0; i < cfg.MaxAttemptsPerHour; i++ {
			require.NoError(t, rc.RecordAttempt(ctx, s))
		}

		got, err := rc.Assess(ctx, s)
		require.NoError(t, err)
		assert.False(t, got.Block)
		assert.Equal(t, payment.RiskMedium, got.Level)
		assert.Len(t, got.Details, 2)
	})
}

func TestRiskControl_ClientAddress(t *testing.T) {
	ctx := context.Background()

	t.Run("blocked address", func(t *testing.T) {
		cfg := DefaultRiskConfig()
		cfg.BlockedIPs = []string{"203.0.113.9"}
		rc, _ := newTestRiskControl(cfg)

		got, err := rc.Assess(ctx, subject("u-1", "10", "203.0.113.9"))
		require.NoError(t, err)
		assert.True(t, got.Block)
		assert.Equal(t, "client address is blocked", got.Reason)

		got, err = rc.Assess(ctx, subject("u-1", "10", "198.51.100.4"))
		require.NoError(t, err)
		assert.False(t, got.Block)
	})

	t.Run("busy address is medium across users", func(t *testing.T) {
		cfg := DefaultRiskConfig()
		cfg.MaxIPAttemptsPerHour = 2
		rc, _ := newTestRiskControl(cfg)
		require.NoError(t, rc.RecordAttempt(ctx, subject("u-1", "10", "198.51.100.4")))
		require.NoError(t, rc.RecordAttempt(ctx, subject("u-2", "10", "198.51.100.4")))

		got, err := rc.Assess(ctx, subject("u-3", "10", "198.51.100.4"))
		require.NoError(t, err)
		assert.False(t, got.Block)
		assert.Equal(t, payment.RiskMedium, got.Level)
		assert.Contains(t, got.Details, "ip_risk")

		got, err = rc.Assess(ctx, subject("u-3", "10", ""))
		require.NoError(t, err)
		assert.Equal(t, payment.RiskLow, got.Level)
	})
}

func TestRiskControl_Failures(t *testing.T) {
	ctx := context.Background()
	rc, clock := newTestRiskControl(DefaultRiskConfig())
	s := subject("u-1", "10", "")

	for i := 0; i < 3; i++ {
		require.NoError(t, rc.RecordOutcome(ctx, "u-1", false))
	}
	got, err := rc.Assess(ctx, s)
	require.NoError(t, err)
	assert.True(t, got.Block)
	assert.Equal(t, "too many recent failed payments", got.Reason)

	require.NoError(t, rc.RecordOutcome(ctx, "u-1", true))
	got, err = rc.Assess(ctx, s)
	require.NoError(t, err)
	assert.False(t, got.Block)

	for i := 0; i < 3; i++ {
		require.NoError(t, rc.RecordOutcome(ctx, "u-1", false))
	}
	clock.advance(time.Hour)
	got, err = rc.Assess(ctx, s)
	require.NoError(t, err)
	assert.False(t, got.Block, "failures age out after the window")
}

func TestRiskControl_BlockUser(t *testing.T) {
	ctx := context.Background()
	rc, clock := newTestRiskControl(DefaultRiskConfig())
	s := subject("u-1", "10", "")

	require.NoError(t, rc.BlockUser(ctx, "u-1", "chargeback", 30*time.Minute))
	got, err := rc.Assess(ctx, s)
	require.NoError(t, err)
	assert.True(t, got.Block)
	assert.Equal(t, "chargeback", got.Details["block_reason"])

	require.NoError(t, rc.UnblockUser(ctx, "u-1"))
	got, err = rc.Assess(ctx, s)
	require.NoError(t, err)
	assert.False(t, got.Block)

	require.NoError(t, rc.BlockUser(ctx, "u-1", "chargeback", 30*time.Minute))
	clock.advance(30 * time.Minute)
	got, err = rc.Assess(ctx, s)
	require.NoError(t, err)
	assert.False(t, got.Block, "block expires")

	assert.ErrorIs(t, rc.BlockUser(ctx, "", "x", time.Minute), shared.ErrValidation)
	assert.ErrorIs(t, rc.BlockUser(ctx, "u-1", "x", 0), shared.ErrValidation)
}

func TestRiskControl_CounterErrors(t *testing.T) {
	ctx := context.Background()
	rc := NewRiskControl(unreachableCounters{}, DefaultRiskConfig(), nil, nil)

	_, err := rc.Assess(ctx, subject("u-1", "10", ""))
	assert.ErrorIs(t, err, errCountersDown)
	assert.ErrorIs(t, rc.RecordAttempt(ctx, subject("u-1", "10", "")), errCountersDown)
}
