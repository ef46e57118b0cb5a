package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// RefundStatus represents the status of a refund record
type RefundStatus string

const (
	// RefundStatusPending indicates the refund was accepted locally and is
	// awaiting the provider's confirmation
	RefundStatusPending RefundStatus = "PENDING"
	RefundStatusSuccess RefundStatus = "SUCCESS"
	RefundStatusFailed  RefundStatus = "FAILED"
)

// IsTerminal returns true if the refund is in a terminal state
func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusSuccess || s == RefundStatusFailed
}

func (s RefundStatus) String() string {
	return string(s)
}

// RefundRecord is one refund attempt against a payment
type RefundRecord struct {
	shared.BaseAggregateRoot

	RefundNo        string          `json:"refund_no"`
	PaymentID       uuid.UUID       `json:"payment_id"`
	PaymentNo       string          `json:"payment_no"`
	PaymentType     PaymentType     `json:"payment_type"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	Reason          string          `json:"reason"`
	Status          RefundStatus    `json:"status"`
	GatewayRefundID string          `json:"gateway_refund_id"`
	FailReason      string          `json:"fail_reason"`
	CompletedAt     *time.Time      `json:"completed_at"`
	FailedAt        *time.Time      `json:"failed_at"`
}

// NewRefundRecord creates a refund record in PENDING. Use Payment.StartRefund
// so the refundable-amount check runs.
func NewRefundRecord(refundNo string, p *Payment, amount decimal.Decimal, reason string) (*RefundRecord, error) {
	if refundNo == "" {
		return nil, shared.NewValidationError("refund number cannot be empty")
	}
	if len(refundNo) > 50 {
		return nil, shared.NewValidationError("refund number cannot exceed 50 characters")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("refund amount must be positive")
	}
	if len(reason) > 255 {
		return nil, shared.NewValidationError("refund reason cannot exceed 255 characters")
	}
	return &RefundRecord{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		RefundNo:          refundNo,
		PaymentID:         p.ID,
		PaymentNo:         p.PaymentNo,
		PaymentType:       p.PaymentType,
		RefundAmount:      amount.Round(2),
		Reason:            reason,
		Status:            RefundStatusPending,
	}, nil
}

// Complete marks the refund as successful. Completing an already successful
// refund is a no-op.
func (r *RefundRecord) Complete(gatewayRefundID string) (changed bool, err error) {
	if r.Status == RefundStatusSuccess {
		return false, nil
	}
	if r.Status != RefundStatusPending {
		return false, shared.NewStateConflictError("cannot complete refund %s in status %s", r.RefundNo, r.Status)
	}
	now := time.Now()
	if gatewayRefundID != "" {
		r.GatewayRefundID = gatewayRefundID
	}
	r.Status = RefundStatusSuccess
	r.CompletedAt = &now
	r.IncrementVersion()
	return true, nil
}

// Fail marks the refund as failed. Failing an already failed refund is a no-op.
func (r *RefundRecord) Fail(reason string) (changed bool, err error) {
	if r.Status == RefundStatusFailed {
		return false, nil
	}
	if r.Status != RefundStatusPending {
		return false, shared.NewStateConflictError("cannot fail refund %s in status %s", r.RefundNo, r.Status)
	}
	now := time.Now()
	r.Status = RefundStatusFailed
	r.FailReason = reason
	r.FailedAt = &now
	r.IncrementVersion()
	return true, nil
}
