package event

import (
	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/reconciliation"
)

// RegisterAllEvents registers every outbound event type with the serializer.
// The outbox processor needs this to decode stored payloads.
func RegisterAllEvents(serializer *EventSerializer) {
	serializer.Register(payment.EventTypePaymentPaid, &payment.PaymentPaidEvent{})
	serializer.Register(payment.EventTypePaymentFailed, &payment.PaymentFailedEvent{})
	serializer.Register(payment.EventTypePaymentRefunded, &payment.PaymentRefundedEvent{})
	serializer.Register(payment.EventTypePaymentRefundFailed, &payment.PaymentRefundFailedEvent{})

	serializer.Register(reconciliation.EventTypeIntegrityAlert, &reconciliation.IntegrityAlertEvent{})
}

// AllRoutingKeys lists every routing key the service publishes to
func AllRoutingKeys() []string {
	return append(payment.AllRoutingKeys(), reconciliation.RoutingKeyIntegrityAlert)
}
