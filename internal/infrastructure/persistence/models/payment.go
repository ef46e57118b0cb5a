package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
)

// PaymentModel is the persistence model for the Payment aggregate
type PaymentModel struct {
	AggregateModel
	PaymentNo      string                `gorm:"type:varchar(32);not null;uniqueIndex"`
	OrderNo        string                `gorm:"type:varchar(64);not null;index"`
	UserID         string                `gorm:"type:varchar(64);index"`
	Amount         decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	PaymentType    payment.PaymentType   `gorm:"type:varchar(20);not null;index:idx_payment_type_pay_time,priority:1"`
	Status         payment.PaymentStatus `gorm:"type:varchar(20);not null;index"`
	TransactionID  string                `gorm:"type:varchar(64);index"`
	PayTime        *time.Time            `gorm:"index:idx_payment_type_pay_time,priority:2"`
	RefundedAmount decimal.Decimal       `gorm:"type:decimal(18,2);not null;default:0"`
	FailReason     string                `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *payment.Payment {
	return &payment.Payment{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		PaymentNo:         m.PaymentNo,
		OrderNo:           m.OrderNo,
		UserID:            m.UserID,
		Amount:            m.Amount,
		PaymentType:       m.PaymentType,
		Status:            m.Status,
		TransactionID:     m.TransactionID,
		PayTime:           m.PayTime,
		RefundedAmount:    m.RefundedAmount,
		FailReason:        m.FailReason,
	}
}

// FromDomain populates the persistence model from a domain Payment
func (m *PaymentModel) FromDomain(p *payment.Payment) {
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	m.PaymentNo = p.PaymentNo
	m.OrderNo = p.OrderNo
	m.UserID = p.UserID
	m.Amount = p.Amount
	m.PaymentType = p.PaymentType
	m.Status = p.Status
	m.TransactionID = p.TransactionID
	m.PayTime = p.PayTime
	m.RefundedAmount = p.RefundedAmount
	m.FailReason = p.FailReason
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *payment.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// RefundRecordModel is the persistence model for refund records
type RefundRecordModel struct {
	AggregateModel
	RefundNo        string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	PaymentID       uuid.UUID            `gorm:"type:uuid;not null;index"`
	PaymentNo       string               `gorm:"type:varchar(32);not null;index"`
	PaymentType     payment.PaymentType  `gorm:"type:varchar(20);not null"`
	RefundAmount    decimal.Decimal      `gorm:"type:decimal(18,2);not null"`
	Reason          string               `gorm:"type:varchar(255)"`
	Status          payment.RefundStatus `gorm:"type:varchar(20);not null;index"`
	GatewayRefundID string               `gorm:"type:varchar(64)"`
	FailReason      string               `gorm:"type:varchar(255)"`
	CompletedAt     *time.Time
	FailedAt        *time.Time
}

// TableName returns the table name for GORM
func (RefundRecordModel) TableName() string {
	return "refund_records"
}

// ToDomain converts the persistence model to a domain RefundRecord
func (m *RefundRecordModel) ToDomain() *payment.RefundRecord {
	return &payment.RefundRecord{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		RefundNo:          m.RefundNo,
		PaymentID:         m.PaymentID,
		PaymentNo:         m.PaymentNo,
		PaymentType:       m.PaymentType,
		RefundAmount:      m.RefundAmount,
		Reason:            m.Reason,
		Status:            m.Status,
		GatewayRefundID:   m.GatewayRefundID,
		FailReason:        m.FailReason,
		CompletedAt:       m.CompletedAt,
		FailedAt:          m.FailedAt,
	}
}

// FromDomain populates the persistence model from a domain RefundRecord
func (m *RefundRecordModel) FromDomain(r *payment.RefundRecord) {
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	m.RefundNo = r.RefundNo
	m.PaymentID = r.PaymentID
	m.PaymentNo = r.PaymentNo
	m.PaymentType = r.PaymentType
	m.RefundAmount = r.RefundAmount
	m.Reason = r.Reason
	m.Status = r.Status
	m.GatewayRefundID = r.GatewayRefundID
	m.FailReason = r.FailReason
	m.CompletedAt = r.CompletedAt
	m.FailedAt = r.FailedAt
}

// RefundRecordModelFromDomain creates a new persistence model from a domain RefundRecord
func RefundRecordModelFromDomain(r *payment.RefundRecord) *RefundRecordModel {
	m := &RefundRecordModel{}
	m.FromDomain(r)
	return m
}
