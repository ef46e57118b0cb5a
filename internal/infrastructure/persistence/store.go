package persistence

import (
	"context"

	"gorm.io/gorm"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/reconciliation"
)

// OutboxSinks hands out event sinks bound to a transaction
type OutboxSinks interface {
	Sink(tx *gorm.DB) payment.EventSink
}

// GormLedgerStore implements payment.LedgerStore. Rows and outbox entries
// written inside InTx commit together.
type GormLedgerStore struct {
	db       *gorm.DB
	sinks    OutboxSinks
	payments *GormPaymentRepository
	refunds  *GormRefundRepository
}

// NewGormLedgerStore creates a ledger store
func NewGormLedgerStore(db *gorm.DB, sinks OutboxSinks) *GormLedgerStore {
	return &GormLedgerStore{
		db:       db,
		sinks:    sinks,
		payments: NewGormPaymentRepository(db),
		refunds:  NewGormRefundRepository(db),
	}
}

func (s *GormLedgerStore) Payments() payment.PaymentRepository { return s.payments }

func (s *GormLedgerStore) Refunds() payment.RefundRepository { return s.refunds }

// Reader is the read-only view used by reconciliation
func (s *GormLedgerStore) Reader() payment.PaymentReader { return s.payments }

// InTx runs fn in one transaction
func (s *GormLedgerStore) InTx(ctx context.Context, fn func(tx payment.LedgerTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormLedgerTx{
			payments: NewGormPaymentRepository(tx),
			refunds:  NewGormRefundRepository(tx),
			events:   s.sinks.Sink(tx),
		})
	})
}

type gormLedgerTx struct {
	payments *GormPaymentRepository
	refunds  *GormRefundRepository
	events   payment.EventSink
}

func (t *gormLedgerTx) Payments() payment.PaymentRepository { return t.payments }
func (t *gormLedgerTx) Refunds() payment.RefundRepository   { return t.refunds }
func (t *gormLedgerTx) Events() payment.EventSink           { return t.events }

// GormReconciliationStore implements reconciliation.Store
type GormReconciliationStore struct {
	db      *gorm.DB
	sinks   OutboxSinks
	batches *GormBatchRepository
	records *GormRecordRepository
}

// NewGormReconciliationStore creates a reconciliation store
func NewGormReconciliationStore(db *gorm.DB, sinks OutboxSinks) *GormReconciliationStore {
	return &GormReconciliationStore{
		db:      db,
		sinks:   sinks,
		batches: NewGormBatchRepository(db),
		records: NewGormRecordRepository(db),
	}
}

func (s *GormReconciliationStore) Batches() reconciliation.BatchRepository { return s.batches }

func (s *GormReconciliationStore) Records() reconciliation.RecordRepository { return s.records }

// InTx runs fn in one transaction
func (s *GormReconciliationStore) InTx(ctx context.Context, fn func(tx reconciliation.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormReconciliationTx{
			batches: NewGormBatchRepository(tx),
			records: NewGormRecordRepository(tx),
			events:  s.sinks.Sink(tx),
		})
	})
}

type gormReconciliationTx struct {
	batches *GormBatchRepository
	records *GormRecordRepository
	events  payment.EventSink
}

func (t *gormReconciliationTx) Batches() reconciliation.BatchRepository  { return t.batches }
func (t *gormReconciliationTx) Records() reconciliation.RecordRepository { return t.records }
func (t *gormReconciliationTx) Events() payment.EventSink                { return t.events }

var (
	_ payment.LedgerStore  = (*GormLedgerStore)(nil)
	_ reconciliation.Store = (*GormReconciliationStore)(nil)
	_ payment.LedgerTx     = (*gormLedgerTx)(nil)
	_ reconciliation.Tx    = (*gormReconciliationTx)(nil)
)
