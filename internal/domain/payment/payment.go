package payment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// PaymentType identifies the provider that settles a payment
type PaymentType string

const (
	PaymentTypeGatewayA PaymentType = "GATEWAY_A"
	PaymentTypeGatewayB PaymentType = "GATEWAY_B"
	PaymentTypeBalance  PaymentType = "BALANCE"
)

// IsValid checks if the payment type is valid
func (t PaymentType) IsValid() bool {
	switch t {
	case PaymentTypeGatewayA, PaymentTypeGatewayB, PaymentTypeBalance:
		return true
	}
	return false
}

func (t PaymentType) String() string {
	return string(t)
}

// Code is the single-digit code used inside generated numbers.
func (t PaymentType) Code() string {
	switch t {
	case PaymentTypeGatewayA:
		return "1"
	case PaymentTypeGatewayB:
		return "2"
	case PaymentTypeBalance:
		return "3"
	}
	return "0"
}

// AllPaymentTypes returns all valid payment types
func AllPaymentTypes() []PaymentType {
	return []PaymentType{PaymentTypeGatewayA, PaymentTypeGatewayB, PaymentTypeBalance}
}

// PaymentStatus is the ledger state of a payment
type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "CREATED"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunding PaymentStatus = "REFUNDING"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

func (s PaymentStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusCreated, PaymentStatusPending, PaymentStatusPaid,
		PaymentStatusFailed, PaymentStatusRefunding, PaymentStatusRefunded:
		return true
	}
	return false
}

// IsSettled reports whether money moved for a payment in this state. Settled
// payments are the internal side of reconciliation.
func (s PaymentStatus) IsSettled() bool {
	return s == PaymentStatusPaid || s == PaymentStatusRefunding || s == PaymentStatusRefunded
}

var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusCreated:   {PaymentStatusPending},
	PaymentStatusPending:   {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusPaid:      {PaymentStatusRefunding},
	PaymentStatusRefunding: {PaymentStatusRefunded, PaymentStatusPaid},
}

// CanTransitionTo reports whether to is reachable from s in one step.
func (s PaymentStatus) CanTransitionTo(to PaymentStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Payment is one payment attempt for an order. Amount never changes after
// creation and PaymentNo is the idempotency key for every later operation.
type Payment struct {
	shared.BaseAggregateRoot

	PaymentNo      string          `json:"payment_no"`
	OrderNo        string          `json:"order_no"`
	UserID         string          `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentType    PaymentType     `json:"payment_type"`
	Status         PaymentStatus   `json:"status"`
	TransactionID  string          `json:"transaction_id"`
	PayTime        *time.Time      `json:"pay_time"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	FailReason     string          `json:"fail_reason"`
}

// NewPayment creates a payment in CREATED
func NewPayment(paymentNo, orderNo, userID string, amount decimal.Decimal, paymentType PaymentType) (*Payment, error) {
	if paymentNo == "" {
		return nil, shared.NewValidationError("payment number cannot be empty")
	}
	if orderNo == "" {
		return nil, shared.NewValidationError("order number cannot be empty")
	}
	if len(orderNo) > 64 {
		return nil, shared.NewValidationError("order number cannot exceed 64 characters")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("payment amount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, shared.NewValidationError("payment amount cannot have more than 2 decimal places")
	}
	if !paymentType.IsValid() {
		return nil, shared.NewValidationError("invalid payment type %q", paymentType)
	}

	return &Payment{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		PaymentNo:         paymentNo,
		OrderNo:           orderNo,
		UserID:            userID,
		Amount:            amount.Round(2),
		PaymentType:       paymentType,
		Status:            PaymentStatusCreated,
		RefundedAmount:    decimal.Zero,
	}, nil
}

func (p *Payment) conflict(action string) error {
	return shared.NewStateConflictError("cannot %s payment %s in status %s", action, p.PaymentNo, p.Status)
}

func (p *Payment) moveTo(to PaymentStatus) {
	p.Status = to
	p.IncrementVersion()
}

// MarkPending moves CREATED to PENDING once the client has been handed the
// provider parameters.
func (p *Payment) MarkPending() error {
	if p.Status != PaymentStatusCreated {
		return p.conflict("mark pending")
	}
	p.moveTo(PaymentStatusPending)
	return nil
}

// ConfirmPaid moves PENDING to PAID. Calling it again on a PAID payment with
// the same transaction id is a no-op that returns changed == false, so
// duplicate webhooks neither write nor emit events.
func (p *Payment) ConfirmPaid(transactionID string, payTime time.Time) (changed bool, err error) {
	if transactionID == "" {
		return false, shared.NewValidationError("transaction id cannot be empty")
	}
	if p.Status == PaymentStatusPaid && p.TransactionID == transactionID {
		return false, nil
	}
	if p.Status != PaymentStatusPending {
		return false, p.conflict("confirm")
	}
	if payTime.IsZero() {
		payTime = time.Now()
	}
	p.TransactionID = transactionID
	p.PayTime = &payTime
	p.moveTo(PaymentStatusPaid)
	p.AddDomainEvent(NewPaymentPaidEvent(p))
	return true, nil
}

// MarkFailed moves PENDING to FAILED.
func (p *Payment) MarkFailed(reason string) error {
	if p.Status == PaymentStatusFailed {
		return nil
	}
	if p.Status != PaymentStatusPending {
		return p.conflict("fail")
	}
	p.FailReason = reason
	p.moveTo(PaymentStatusFailed)
	p.AddDomainEvent(NewPaymentFailedEvent(p))
	return nil
}

// RefundableAmount is the part of Amount not yet refunded.
func (p *Payment) RefundableAmount() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

// StartRefund moves PAID to REFUNDING and creates the refund record.
func (p *Payment) StartRefund(refundNo string, amount decimal.Decimal, reason string) (*RefundRecord, error) {
	if p.Status != PaymentStatusPaid {
		return nil, p.conflict("refund")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("refund amount must be positive")
	}
	if amount.GreaterThan(p.RefundableAmount()) {
		return nil, shared.NewValidationError("refund amount %s exceeds refundable amount %s",
			amount.StringFixed(2), p.RefundableAmount().StringFixed(2))
	}
	refund, err := NewRefundRecord(refundNo, p, amount, reason)
	if err != nil {
		return nil, err
	}
	p.moveTo(PaymentStatusRefunding)
	return refund, nil
}

// CompleteRefund moves REFUNDING to REFUNDED and accumulates the refunded amount.
func (p *Payment) CompleteRefund(refund *RefundRecord) error {
	if p.Status != PaymentStatusRefunding {
		return p.conflict("complete refund for")
	}
	refunded := p.RefundedAmount.Add(refund.RefundAmount)
	if refunded.GreaterThan(p.Amount) {
		return shared.NewValidationError("refunds for payment %s would exceed its amount", p.PaymentNo)
	}
	p.RefundedAmount = refunded
	p.moveTo(PaymentStatusRefunded)
	p.AddDomainEvent(NewPaymentRefundedEvent(p, refund))
	return nil
}

// FailRefund moves REFUNDING back to PAID.
func (p *Payment) FailRefund(refund *RefundRecord) error {
	if p.Status != PaymentStatusRefunding {
		return p.conflict("fail refund for")
	}
	p.moveTo(PaymentStatusPaid)
	p.AddDomainEvent(NewPaymentRefundFailedEvent(p, refund))
	return nil
}
