package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// memoryAccounts is an in-memory BalanceAccount for adapter tests
type memoryAccounts struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	trades   []payment.BalanceTrade
	now      time.Time
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{
		balances: map[string]decimal.Decimal{},
		now:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (m *memoryAccounts) find(reference string, credit bool) *payment.BalanceTrade {
	for i := range m.trades {
		if m.trades[i].Reference == reference && m.trades[i].Credit == credit {
			return &m.trades[i]
		}
	}
	return nil
}

func (m *memoryAccounts) move(userID string, amount decimal.Decimal, reference string, credit bool) (*payment.BalanceTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.find(reference, credit); t != nil {
		cp := *t
		return &cp, nil
	}
	if credit {
		m.balances[userID] = m.balances[userID].Add(amount)
	} else {
		if m.balances[userID].LessThan(amount) {
			return nil, payment.ErrInsufficientBalance
		}
		m.balances[userID] = m.balances[userID].Sub(amount)
	}
	trade := payment.BalanceTrade{
		TransactionID: "BT" + reference,
		UserID:        userID,
		Reference:     reference,
		Amount:        amount,
		Credit:        credit,
		CreatedAt:     m.now,
	}
	m.trades = append(m.trades, trade)
	return &trade, nil
}

func (m *memoryAccounts) Debit(_ context.Context, userID string, amount decimal.Decimal, reference string) (*payment.BalanceTrade, error) {
	return m.move(userID, amount, reference, false)
}

func (m *memoryAccounts) Credit(_ context.Context, userID string, amount decimal.Decimal, reference string) (*payment.BalanceTrade, error) {
	return m.move(userID, amount, reference, true)
}

func (m *memoryAccounts) FindTrade(_ context.Context, reference string) (*payment.BalanceTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trades {
		if m.trades[i].Reference == reference {
			cp := m.trades[i]
			return &cp, nil
		}
	}
	return nil, shared.NewNotFoundError("balance trade %s not found", reference)
}

func (m *memoryAccounts) Debits(_ context.Context, from, to time.Time) ([]payment.BalanceTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []payment.BalanceTrade
	for _, t := range m.trades {
		if !t.Credit && !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func newBalancePayment(t *testing.T, paymentNo, amount string) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(paymentNo, "ORD-"+paymentNo, "u-1", decimal.RequireFromString(amount), payment.PaymentTypeBalance)
	require.NoError(t, err)
	return p
}

func TestBalanceAdapter_CreatePaymentParams_SettlesSynchronously(t *testing.T) {
	accounts := newMemoryAccounts()
	accounts.balances["u-1"] = decimal.NewFromInt(100)
	adapter := NewBalanceAdapter(accounts)

	params, err := adapter.CreatePaymentParams(context.Background(), newBalancePayment(t, "P1", "30"), payment.CreateParamsOptions{})
	require.NoError(t, err)
	assert.True(t, params.Settled)
	assert.Equal(t, "BTP1", params.TransactionID)
	assert.Equal(t, accounts.now, params.SettledAt)
	assert.True(t, decimal.NewFromInt(70).Equal(accounts.balances["u-1"]))

	// a retry returns the same settlement without charging again
	again, err := adapter.CreatePaymentParams(context.Background(), newBalancePayment(t, "P1", "30"), payment.CreateParamsOptions{})
	require.NoError(t, err)
	assert.Equal(t, params.TransactionID, again.TransactionID)
	assert.True(t, decimal.NewFromInt(70).Equal(accounts.balances["u-1"]))
}

func TestBalanceAdapter_CreatePaymentParams_InsufficientBalance(t *testing.T) {
	accounts := newMemoryAccounts()
	accounts.balances["u-1"] = decimal.NewFromInt(10)
	adapter := NewBalanceAdapter(accounts)

	_, err := adapter.CreatePaymentParams(context.Background(), newBalancePayment(t, "P1", "30"), payment.CreateParamsOptions{})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.ErrorIs(t, err, payment.ErrInsufficientBalance)
}

func TestBalanceAdapter_ParseCallback_NotSupported(t *testing.T) {
	adapter := NewBalanceAdapter(newMemoryAccounts())
	_, err := adapter.ParseCallback(context.Background(), &payment.CallbackRequest{Body: []byte("{}")})
	assert.ErrorIs(t, err, payment.ErrCallbackNotSupported)
}

func TestBalanceAdapter_QueryStatus(t *testing.T) {
	accounts := newMemoryAccounts()
	accounts.balances["u-1"] = decimal.NewFromInt(100)
	adapter := NewBalanceAdapter(accounts)
	ctx := context.Background()

	result, err := adapter.QueryStatus(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderStatusPending, result.Status)

	_, err = adapter.CreatePaymentParams(ctx, newBalancePayment(t, "P1", "30"), payment.CreateParamsOptions{})
	require.NoError(t, err)

	result, err = adapter.QueryStatus(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, payment.ProviderStatusSuccess, result.Status)
	assert.Equal(t, "BTP1", result.TransactionID)
	require.NotNil(t, result.PaidAt)
}

func TestBalanceAdapter_RequestRefund(t *testing.T) {
	accounts := newMemoryAccounts()
	accounts.balances["u-1"] = decimal.NewFromInt(100)
	adapter := NewBalanceAdapter(accounts)
	ctx := context.Background()

	_, err := adapter.CreatePaymentParams(ctx, newBalancePayment(t, "P1", "30"), payment.CreateParamsOptions{})
	require.NoError(t, err)

	result, err := adapter.RequestRefund(ctx, &payment.GatewayRefundRequest{
		PaymentNo:    "P1",
		RefundNo:     "R1",
		TotalAmount:  decimal.NewFromInt(30),
		RefundAmount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.Equal(t, payment.RefundStatusSuccess, result.Status)
	assert.Equal(t, "BTR1", result.GatewayRefundID)
	assert.True(t, decimal.NewFromInt(80).Equal(accounts.balances["u-1"]))

	missing, err := adapter.RequestRefund(ctx, &payment.GatewayRefundRequest{PaymentNo: "P-unknown", RefundNo: "R2", RefundAmount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, payment.RefundStatusFailed, missing.Status)
}

func TestBalanceAdapter_FetchStatement(t *testing.T) {
	accounts := newMemoryAccounts()
	accounts.balances["u-1"] = decimal.NewFromInt(100)
	adapter := NewBalanceAdapter(accounts)
	ctx := context.Background()

	_, err := adapter.CreatePaymentParams(ctx, newBalancePayment(t, "P1", "30"), payment.CreateParamsOptions{})
	require.NoError(t, err)
	accounts.now = accounts.now.AddDate(0, 0, 1)
	_, err = adapter.CreatePaymentParams(ctx, newBalancePayment(t, "P2", "5"), payment.CreateParamsOptions{})
	require.NoError(t, err)
	accounts.now = accounts.now.AddDate(0, 0, -1)
	_, err = accounts.Debit(ctx, "u-1", decimal.NewFromInt(10), payment.RechargeReversalRef("R1"))
	require.NoError(t, err)

	entries, err := adapter.FetchStatement(ctx, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "P1", entries[0].PaymentNo)
	assert.Equal(t, payment.ProviderStatusSuccess, entries[0].Status)
}
