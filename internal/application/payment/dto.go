package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// CreatePaymentInput is the request to open a payment
type CreatePaymentInput struct {
	OrderNo     string `json:"order_no" binding:"required,max=64"`
	UserID      string `json:"user_id" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	PaymentType string `json:"payment_type" binding:"required"`
	// ClientIP is filled in by the transport for risk control
	ClientIP string `json:"-"`
}

// Validate checks the fields that need no lookups
func (in CreatePaymentInput) Validate() error {
	if in.OrderNo == "" {
		return shared.NewValidationError("order number cannot be empty")
	}
	if in.UserID == "" {
		return shared.NewValidationError("user id cannot be empty")
	}
	if in.Amount == "" {
		return shared.NewValidationError("amount cannot be empty")
	}
	return nil
}

// RechargeInput is the request to top up a stored-value balance
type RechargeInput struct {
	UserID      string `json:"user_id" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	PaymentType string `json:"payment_type" binding:"required"`
	ClientIP    string `json:"-"`
}

// Validate checks the fields that need no lookups
func (in RechargeInput) Validate() error {
	if in.UserID == "" {
		return shared.NewValidationError("user id cannot be empty")
	}
	if in.Amount == "" {
		return shared.NewValidationError("amount cannot be empty")
	}
	return nil
}

// RefundInput is the request to refund part or all of a payment
type RefundInput struct {
	PaymentNo string `json:"payment_no"`
	Amount    string `json:"amount" binding:"required"`
	Reason    string `json:"reason" binding:"max=255"`
}

// Validate checks the fields that need no lookups
func (in RefundInput) Validate() error {
	if in.PaymentNo == "" {
		return shared.NewValidationError("payment number cannot be empty")
	}
	if in.Amount == "" {
		return shared.NewValidationError("refund amount cannot be empty")
	}
	return nil
}

// PaymentDTO is the external view of a payment
type PaymentDTO struct {
	ID             uuid.UUID       `json:"id"`
	PaymentNo      string          `json:"payment_no"`
	OrderNo        string          `json:"order_no"`
	UserID         string          `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentType    string          `json:"payment_type"`
	Status         string          `json:"status"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	PayTime        *time.Time      `json:"pay_time,omitempty"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	FailReason     string          `json:"fail_reason,omitempty"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Refunds        []RefundDTO     `json:"refunds,omitempty"`
}

// RefundDTO is the external view of a refund record
type RefundDTO struct {
	ID              uuid.UUID       `json:"id"`
	RefundNo        string          `json:"refund_no"`
	PaymentNo       string          `json:"payment_no"`
	PaymentType     string          `json:"payment_type"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	Reason          string          `json:"reason,omitempty"`
	Status          string          `json:"status"`
	GatewayRefundID string          `json:"gateway_refund_id,omitempty"`
	FailReason      string          `json:"fail_reason,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	FailedAt        *time.Time      `json:"failed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// InitiateResult carries the provider parameters for the client together
// with the payment after initiation
type InitiateResult struct {
	Payment *PaymentDTO            `json:"payment"`
	Params  *payment.PaymentParams `json:"params"`
}

// CallbackResponse is the acknowledgement written back to the provider
type CallbackResponse struct {
	ContentType string
	Body        []byte
}

// ToPaymentDTO converts a payment and, optionally, its refunds
func ToPaymentDTO(p *payment.Payment, refunds []*payment.RefundRecord) *PaymentDTO {
	dto := &PaymentDTO{
		ID:             p.ID,
		PaymentNo:      p.PaymentNo,
		OrderNo:        p.OrderNo,
		UserID:         p.UserID,
		Amount:         p.Amount,
		PaymentType:    string(p.PaymentType),
		Status:         string(p.Status),
		TransactionID:  p.TransactionID,
		PayTime:        p.PayTime,
		RefundedAmount: p.RefundedAmount,
		FailReason:     p.FailReason,
		Version:        p.Version,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	for _, r := range refunds {
		dto.Refunds = append(dto.Refunds, *ToRefundDTO(r))
	}
	return dto
}

// ToRefundDTO converts a refund record
func ToRefundDTO(r *payment.RefundRecord) *RefundDTO {
	return &RefundDTO{
		ID:              r.ID,
		RefundNo:        r.RefundNo,
		PaymentNo:       r.PaymentNo,
		PaymentType:     string(r.PaymentType),
		RefundAmount:    r.RefundAmount,
		Reason:          r.Reason,
		Status:          string(r.Status),
		GatewayRefundID: r.GatewayRefundID,
		FailReason:      r.FailReason,
		CompletedAt:     r.CompletedAt,
		FailedAt:        r.FailedAt,
		CreatedAt:       r.CreatedAt,
	}
}
