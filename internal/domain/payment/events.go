package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// Event type names
const (
	EventTypePaymentPaid         = "PaymentPaid"
	EventTypePaymentFailed       = "PaymentFailed"
	EventTypePaymentRefunded     = "PaymentRefunded"
	EventTypePaymentRefundFailed = "PaymentRefundFailed"
)

// Broker routing keys for outbound payment events
const (
	RoutingKeyPaymentSuccess       = "payment.success"
	RoutingKeyPaymentFailed        = "payment.failed"
	RoutingKeyPaymentRefundSuccess = "payment.refund.success"
	RoutingKeyPaymentRefundFailed  = "payment.refund.failed"
)

const aggregateTypePayment = "Payment"

// AllRoutingKeys lists every routing key this package publishes to.
func AllRoutingKeys() []string {
	return []string{
		RoutingKeyPaymentSuccess,
		RoutingKeyPaymentFailed,
		RoutingKeyPaymentRefundSuccess,
		RoutingKeyPaymentRefundFailed,
	}
}

// PaymentEvent is the body carried on the broker for every payment lifecycle
// event. Refund fields are only set for refund events.
type PaymentEvent struct {
	shared.BaseDomainEvent
	PaymentID     uuid.UUID        `json:"payment_id"`
	PaymentNo     string           `json:"payment_no"`
	OrderNo       string           `json:"order_no"`
	UserID        string           `json:"user_id,omitempty"`
	PaymentType   PaymentType      `json:"payment_type"`
	Amount        decimal.Decimal  `json:"amount"`
	TransactionID string           `json:"transaction_id,omitempty"`
	PayTime       *time.Time       `json:"pay_time,omitempty"`
	RefundNo      string           `json:"refund_no,omitempty"`
	RefundAmount  *decimal.Decimal `json:"refund_amount,omitempty"`
	Reason        string           `json:"reason,omitempty"`
}

// DedupScope is the refund number for refund events, so each refund of a
// payment is delivered on its own
func (e *PaymentEvent) DedupScope() string { return e.RefundNo }

func newPaymentEvent(eventType string, p *Payment) PaymentEvent {
	return PaymentEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, aggregateTypePayment, p.ID, p.PaymentNo),
		PaymentID:       p.ID,
		PaymentNo:       p.PaymentNo,
		OrderNo:         p.OrderNo,
		UserID:          p.UserID,
		PaymentType:     p.PaymentType,
		Amount:          p.Amount,
		TransactionID:   p.TransactionID,
		PayTime:         p.PayTime,
	}
}

// PaymentPaidEvent is raised when a payment reaches PAID
type PaymentPaidEvent struct {
	PaymentEvent
}

func (e *PaymentPaidEvent) RoutingKey() string { return RoutingKeyPaymentSuccess }

// NewPaymentPaidEvent creates a new PaymentPaidEvent
func NewPaymentPaidEvent(p *Payment) *PaymentPaidEvent {
	return &PaymentPaidEvent{PaymentEvent: newPaymentEvent(EventTypePaymentPaid, p)}
}

// PaymentFailedEvent is raised when a pending payment fails
type PaymentFailedEvent struct {
	PaymentEvent
}

func (e *PaymentFailedEvent) RoutingKey() string { return RoutingKeyPaymentFailed }

// NewPaymentFailedEvent creates a new PaymentFailedEvent
func NewPaymentFailedEvent(p *Payment) *PaymentFailedEvent {
	ev := &PaymentFailedEvent{PaymentEvent: newPaymentEvent(EventTypePaymentFailed, p)}
	ev.Reason = p.FailReason
	return ev
}

// PaymentRefundedEvent is raised when the provider confirms a refund
type PaymentRefundedEvent struct {
	PaymentEvent
}

func (e *PaymentRefundedEvent) RoutingKey() string { return RoutingKeyPaymentRefundSuccess }

// NewPaymentRefundedEvent creates a new PaymentRefundedEvent
func NewPaymentRefundedEvent(p *Payment, r *RefundRecord) *PaymentRefundedEvent {
	ev := &PaymentRefundedEvent{PaymentEvent: newPaymentEvent(EventTypePaymentRefunded, p)}
	amount := r.RefundAmount
	ev.RefundNo = r.RefundNo
	ev.RefundAmount = &amount
	ev.Reason = r.Reason
	return ev
}

// PaymentRefundFailedEvent is raised when the provider rejects a refund and
// the payment returns to PAID
type PaymentRefundFailedEvent struct {
	PaymentEvent
}

func (e *PaymentRefundFailedEvent) RoutingKey() string { return RoutingKeyPaymentRefundFailed }

// NewPaymentRefundFailedEvent creates a new PaymentRefundFailedEvent
func NewPaymentRefundFailedEvent(p *Payment, r *RefundRecord) *PaymentRefundFailedEvent {
	ev := &PaymentRefundFailedEvent{PaymentEvent: newPaymentEvent(EventTypePaymentRefundFailed, p)}
	amount := r.RefundAmount
	ev.RefundNo = r.RefundNo
	ev.RefundAmount = &amount
	ev.Reason = r.FailReason
	return ev
}

var (
	_ shared.ScopedEvent   = (*PaymentRefundFailedEvent)(nil)
	_ shared.RoutableEvent = (*PaymentPaidEvent)(nil)
	_ shared.RoutableEvent = (*PaymentFailedEvent)(nil)
	_ shared.RoutableEvent = (*PaymentRefundedEvent)(nil)
	_ shared.RoutableEvent = (*PaymentRefundFailedEvent)(nil)
)
