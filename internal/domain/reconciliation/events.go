package reconciliation

import (
	"github.com/shopspring/decimal"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

const (
	EventTypeIntegrityAlert = "ReconciliationIntegrityAlert"

	// RoutingKeyIntegrityAlert carries MISSING_INTERNAL findings
	RoutingKeyIntegrityAlert = "reconciliation.integrity.alert"

	aggregateTypeBatch = "ReconciliationBatch"
)

// IntegrityAlertEvent is raised for every provider charge with no ledger row
type IntegrityAlertEvent struct {
	shared.BaseDomainEvent
	BatchNo            string          `json:"batch_no"`
	ReconciliationDate string          `json:"reconciliation_date"`
	PaymentType        string          `json:"payment_type"`
	RecordID           string          `json:"record_id"`
	TransactionID      string          `json:"transaction_id,omitempty"`
	PaymentNo          string          `json:"payment_no,omitempty"`
	ExternalAmount     decimal.Decimal `json:"external_amount"`
}

func (e *IntegrityAlertEvent) RoutingKey() string { return RoutingKeyIntegrityAlert }

// NewIntegrityAlertEvent creates the alert for a MISSING_INTERNAL record
func NewIntegrityAlertEvent(b *Batch, rec *Record) *IntegrityAlertEvent {
	ev := &IntegrityAlertEvent{
		BaseDomainEvent:    shared.NewBaseDomainEvent(EventTypeIntegrityAlert, aggregateTypeBatch, b.ID, b.BatchNo+"/"+rec.Key()),
		BatchNo:            b.BatchNo,
		ReconciliationDate: b.DateString(),
		PaymentType:        b.PaymentType.String(),
		RecordID:           rec.ID.String(),
		TransactionID:      rec.TransactionID,
		PaymentNo:          rec.PaymentNo,
		ExternalAmount:     decimal.Zero,
	}
	if rec.ExternalAmount != nil {
		ev.ExternalAmount = *rec.ExternalAmount
	}
	return ev
}

var _ shared.RoutableEvent = (*IntegrityAlertEvent)(nil)
