package payment

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// BalanceAdapter implements payment.Gateway over the internal stored-value
// account. Payments settle synchronously inside CreatePaymentParams.
type BalanceAdapter struct {
	accounts payment.BalanceAccount
}

// NewBalanceAdapter creates a new adapter
func NewBalanceAdapter(accounts payment.BalanceAccount) *BalanceAdapter {
	return &BalanceAdapter{accounts: accounts}
}

// Type returns the gateway type
func (a *BalanceAdapter) Type() payment.PaymentType {
	return payment.PaymentTypeBalance
}

// CreatePaymentParams debits the payer. The debit is keyed by payment number,
// so a repeated call returns the original settlement.
func (a *BalanceAdapter) CreatePaymentParams(ctx context.Context, p *payment.Payment, _ payment.CreateParamsOptions) (*payment.PaymentParams, error) {
	if p.PaymentType != payment.PaymentTypeBalance {
		return nil, shared.NewValidationError("payment %s is not a %s payment", p.PaymentNo, payment.PaymentTypeBalance)
	}
	if p.UserID == "" {
		return nil, shared.NewValidationError("balance payment %s has no user", p.PaymentNo)
	}

	trade, err := a.accounts.Debit(ctx, p.UserID, p.Amount, p.PaymentNo)
	if err != nil {
		if errors.Is(err, payment.ErrInsufficientBalance) {
			return nil, shared.WrapDomainError(shared.CodeValidation, "insufficient balance for payment "+p.PaymentNo, err)
		}
		return nil, err
	}

	return &payment.PaymentParams{
		PaymentNo:     p.PaymentNo,
		PaymentType:   payment.PaymentTypeBalance,
		Params:        map[string]string{"transaction_id": trade.TransactionID},
		ExpireAt:      trade.CreatedAt,
		Settled:       true,
		TransactionID: trade.TransactionID,
		SettledAt:     trade.CreatedAt,
	}, nil
}

// ParseCallback always fails: nothing outside the service settles balance
// payments
func (a *BalanceAdapter) ParseCallback(ctx context.Context, req *payment.CallbackRequest) (*payment.CallbackResult, error) {
	return nil, shared.WrapDomainError(shared.CodeValidation, "balance payments do not accept callbacks", payment.ErrCallbackNotSupported)
}

// QueryStatus reports SUCCESS once the debit exists
func (a *BalanceAdapter) QueryStatus(ctx context.Context, paymentNo string) (*payment.GatewayQueryResult, error) {
	trade, err := a.accounts.FindTrade(ctx, paymentNo)
	if shared.IsNotFound(err) {
		return &payment.GatewayQueryResult{PaymentNo: paymentNo, Status: payment.ProviderStatusPending}, nil
	}
	if err != nil {
		return nil, err
	}
	paidAt := trade.CreatedAt
	return &payment.GatewayQueryResult{
		PaymentNo:     paymentNo,
		TransactionID: trade.TransactionID,
		Status:        payment.ProviderStatusSuccess,
		Amount:        trade.Amount,
		PaidAt:        &paidAt,
	}, nil
}

// RequestRefund credits the payer back. It completes synchronously.
func (a *BalanceAdapter) RequestRefund(ctx context.Context, req *payment.GatewayRefundRequest) (*payment.GatewayRefundResult, error) {
	debit, err := a.accounts.FindTrade(ctx, req.PaymentNo)
	if shared.IsNotFound(err) {
		return &payment.GatewayRefundResult{
			RefundNo: req.RefundNo,
			Status:   payment.RefundStatusFailed,
			Message:  "no balance debit for payment " + req.PaymentNo,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	credit, err := a.accounts.Credit(ctx, debit.UserID, req.RefundAmount, req.RefundNo)
	if err != nil {
		return nil, err
	}
	return &payment.GatewayRefundResult{
		RefundNo:        req.RefundNo,
		GatewayRefundID: credit.TransactionID,
		Status:          payment.RefundStatusSuccess,
	}, nil
}

// FetchStatement lists the day's debits
func (a *BalanceAdapter) FetchStatement(ctx context.Context, date time.Time) ([]payment.StatementEntry, error) {
	from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	debits, err := a.accounts.Debits(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	entries := make([]payment.StatementEntry, 0, len(debits))
	for _, d := range debits {
		if payment.IsRechargeReversalRef(d.Reference) {
			continue
		}
		entries = append(entries, payment.StatementEntry{
			TransactionID: d.TransactionID,
			PaymentNo:     d.Reference,
			Amount:        d.Amount,
			Status:        payment.ProviderStatusSuccess,
			TradeTime:     d.CreatedAt,
		})
	}
	return entries, nil
}

// CallbackAck renders a JSON acknowledgement
func (a *BalanceAdapter) CallbackAck(success bool, message string) (string, []byte) {
	data, _ := json.Marshal(map[string]any{"success": success, "message": message})
	return "application/json", data
}

var _ payment.Gateway = (*BalanceAdapter)(nil)
