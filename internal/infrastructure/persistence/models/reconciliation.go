package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/reconciliation"
)

// ReconciliationBatchModel is the persistence model for reconciliation batches.
// A partial unique index on (reconciliation_date, payment_type) WHERE
// status = 'RUNNING' is created by migration.
type ReconciliationBatchModel struct {
	AggregateModel
	BatchNo            string                     `gorm:"type:varchar(32);not null;uniqueIndex"`
	ReconciliationDate time.Time                  `gorm:"type:date;not null;index:idx_batch_date_type,priority:1"`
	PaymentType        payment.PaymentType        `gorm:"type:varchar(20);not null;index:idx_batch_date_type,priority:2"`
	Status             reconciliation.BatchStatus `gorm:"type:varchar(20);not null;index"`
	InternalCount      int                        `gorm:"not null;default:0"`
	ExternalCount      int                        `gorm:"not null;default:0"`
	InternalTotal      decimal.Decimal            `gorm:"type:decimal(18,2);not null;default:0"`
	ExternalTotal      decimal.Decimal            `gorm:"type:decimal(18,2);not null;default:0"`
	MatchedCount       int                        `gorm:"not null;default:0"`
	DiffCount          int                        `gorm:"not null;default:0"`
	FailReason         string                     `gorm:"type:text"`
	StartedAt          time.Time                  `gorm:"not null"`
	FinishedAt         *time.Time
}

// TableName returns the table name for GORM
func (ReconciliationBatchModel) TableName() string {
	return "reconciliation_batches"
}

// ToDomain converts the persistence model to a domain Batch
func (m *ReconciliationBatchModel) ToDomain() *reconciliation.Batch {
	return &reconciliation.Batch{
		BaseAggregateRoot:  m.ToDomainAggregateRoot(),
		BatchNo:            m.BatchNo,
		ReconciliationDate: m.ReconciliationDate,
		PaymentType:        m.PaymentType,
		Status:             m.Status,
		InternalCount:      m.InternalCount,
		ExternalCount:      m.ExternalCount,
		InternalTotal:      m.InternalTotal,
		ExternalTotal:      m.ExternalTotal,
		MatchedCount:       m.MatchedCount,
		DiffCount:          m.DiffCount,
		FailReason:         m.FailReason,
		StartedAt:          m.StartedAt,
		FinishedAt:         m.FinishedAt,
	}
}

// FromDomain populates the persistence model from a domain Batch
func (m *ReconciliationBatchModel) FromDomain(b *reconciliation.Batch) {
	m.FromDomainAggregateRoot(b.BaseAggregateRoot)
	m.BatchNo = b.BatchNo
	m.ReconciliationDate = b.ReconciliationDate
	m.PaymentType = b.PaymentType
	m.Status = b.Status
	m.InternalCount = b.InternalCount
	m.ExternalCount = b.ExternalCount
	m.InternalTotal = b.InternalTotal
	m.ExternalTotal = b.ExternalTotal
	m.MatchedCount = b.MatchedCount
	m.DiffCount = b.DiffCount
	m.FailReason = b.FailReason
	m.StartedAt = b.StartedAt
	m.FinishedAt = b.FinishedAt
}

// ReconciliationBatchModelFromDomain creates a new persistence model from a domain Batch
func ReconciliationBatchModelFromDomain(b *reconciliation.Batch) *ReconciliationBatchModel {
	m := &ReconciliationBatchModel{}
	m.FromDomain(b)
	return m
}

// ReconciliationRecordModel is the persistence model for reconciliation records
type ReconciliationRecordModel struct {
	ID             uuid.UUID               `gorm:"type:uuid;primaryKey"`
	BatchNo        string                  `gorm:"type:varchar(32);not null;index:idx_record_batch_diff,priority:1"`
	PaymentNo      string                  `gorm:"type:varchar(32);index"`
	TransactionID  string                  `gorm:"type:varchar(64);index"`
	OrderNo        string                  `gorm:"type:varchar(64)"`
	InternalAmount *decimal.Decimal        `gorm:"type:decimal(18,2)"`
	ExternalAmount *decimal.Decimal        `gorm:"type:decimal(18,2)"`
	DiffAmount     decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	DiffType       reconciliation.DiffType `gorm:"type:varchar(20);not null;index:idx_record_batch_diff,priority:2"`
	Resolution     string                  `gorm:"type:varchar(500)"`
	Solver         string                  `gorm:"type:varchar(64)"`
	SolvedAt       *time.Time              `gorm:"index"`
	CreatedAt      time.Time               `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReconciliationRecordModel) TableName() string {
	return "reconciliation_records"
}

// ToDomain converts the persistence model to a domain Record
func (m *ReconciliationRecordModel) ToDomain() *reconciliation.Record {
	return &reconciliation.Record{
		ID:             m.ID,
		BatchNo:        m.BatchNo,
		PaymentNo:      m.PaymentNo,
		TransactionID:  m.TransactionID,
		OrderNo:        m.OrderNo,
		InternalAmount: m.InternalAmount,
		ExternalAmount: m.ExternalAmount,
		DiffAmount:     m.DiffAmount,
		DiffType:       m.DiffType,
		Resolution:     m.Resolution,
		Solver:         m.Solver,
		SolvedAt:       m.SolvedAt,
		CreatedAt:      m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain Record
func (m *ReconciliationRecordModel) FromDomain(r *reconciliation.Record) {
	m.ID = r.ID
	m.BatchNo = r.BatchNo
	m.PaymentNo = r.PaymentNo
	m.TransactionID = r.TransactionID
	m.OrderNo = r.OrderNo
	m.InternalAmount = r.InternalAmount
	m.ExternalAmount = r.ExternalAmount
	m.DiffAmount = r.DiffAmount
	m.DiffType = r.DiffType
	m.Resolution = r.Resolution
	m.Solver = r.Solver
	m.SolvedAt = r.SolvedAt
	m.CreatedAt = r.CreatedAt
}

// ReconciliationRecordModelFromDomain creates a new persistence model from a domain Record
func ReconciliationRecordModelFromDomain(r *reconciliation.Record) *ReconciliationRecordModel {
	m := &ReconciliationRecordModel{}
	m.FromDomain(r)
	return m
}
