package payment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// PaymentFilter narrows payment listings
type PaymentFilter struct {
	Status      PaymentStatus
	PaymentType PaymentType
	OrderNo     string
	Limit       int
	// SortBy and SortOrder are validated by the repository; unknown
	// values fall back to created_at DESC
	SortBy      string
	SortOrder   string
}

// PaymentRepository persists Payment aggregates. Lookups return
// shared.ErrNotFound when nothing matches.
type PaymentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	FindByPaymentNo(ctx context.Context, paymentNo string) (*Payment, error)
	// FindActiveByOrderNo returns the newest payment for orderNo that has not FAILED
	FindActiveByOrderNo(ctx context.Context, orderNo string) (*Payment, error)
	Find(ctx context.Context, filter PaymentFilter) ([]*Payment, error)
	Create(ctx context.Context, p *Payment) error
	// SaveWithLock writes p only if the stored version still equals
	// expectedVersion. A lost race returns a StateConflictError.
	SaveWithLock(ctx context.Context, p *Payment, expectedVersion int) error
}

// RefundRepository persists refund records
type RefundRepository interface {
	FindByRefundNo(ctx context.Context, refundNo string) (*RefundRecord, error)
	FindByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*RefundRecord, error)
	// FindPendingByPaymentID returns the refund awaiting the provider, if any
	FindPendingByPaymentID(ctx context.Context, paymentID uuid.UUID) (*RefundRecord, error)
	Create(ctx context.Context, r *RefundRecord) error
	SaveWithLock(ctx context.Context, r *RefundRecord, expectedVersion int) error
}

// PaymentReader is the read-only view other components get of the ledger
type PaymentReader interface {
	// FindSettledBetween returns payments of the given type whose PayTime is in
	// [from, to) and whose status is PAID, REFUNDING or REFUNDED
	FindSettledBetween(ctx context.Context, paymentType PaymentType, from, to time.Time) ([]*Payment, error)
}

// LedgerTx groups the repositories bound to a single database transaction.
// Domain events saved through Events commit or roll back with the rows.
type LedgerTx interface {
	Payments() PaymentRepository
	Refunds() RefundRepository
	Events() EventSink
}

// EventSink stores domain events in the transactional outbox
type EventSink interface {
	Save(ctx context.Context, events ...shared.DomainEvent) error
}

// LedgerStore is the entry point to ledger persistence
type LedgerStore interface {
	Payments() PaymentRepository
	Refunds() RefundRepository
	// InTx runs fn inside one database transaction
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error
}
