package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
)

// BatchRepository persists batches
type BatchRepository interface {
	// Create inserts a RUNNING batch. A concurrent RUNNING batch for the same
	// (date, payment type) makes it fail with a ReconciliationConflictError.
	Create(ctx context.Context, b *Batch) error
	FindByBatchNo(ctx context.Context, batchNo string) (*Batch, error)
	// FindRunning returns the RUNNING batch for the key, or shared.ErrNotFound
	FindRunning(ctx context.Context, date time.Time, paymentType payment.PaymentType) (*Batch, error)
	FindBetween(ctx context.Context, from, to time.Time) ([]*Batch, error)
	SaveWithLock(ctx context.Context, b *Batch, expectedVersion int) error
}

// RecordFilter narrows record listings
type RecordFilter struct {
	DiffType   DiffType
	Unresolved bool
	Page       int
	PageSize   int
}

// RecordRepository persists reconciliation records
type RecordRepository interface {
	CreateInBatches(ctx context.Context, records []*Record) error
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)
	FindByBatchNo(ctx context.Context, batchNo string, filter RecordFilter) ([]*Record, int64, error)
	FindUnresolved(ctx context.Context, limit int) ([]*Record, error)
	// SaveResolution writes the resolution fields only if none are set yet.
	// A second attempt returns a ReconciliationConflictError.
	SaveResolution(ctx context.Context, r *Record) error
	// CountByDiffType counts records of batches dated in [from, to)
	CountByDiffType(ctx context.Context, from, to time.Time) (map[DiffType]int, error)
	CountUnresolved(ctx context.Context, from, to time.Time) (int, error)
}

// Tx groups the repositories bound to one database transaction
type Tx interface {
	Batches() BatchRepository
	Records() RecordRepository
	Events() payment.EventSink
}

// Store is the entry point to reconciliation persistence
type Store interface {
	Batches() BatchRepository
	Records() RecordRepository
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
