package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// BatchStatus is the lifecycle state of a reconciliation batch
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "RUNNING"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
)

func (s BatchStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid BatchStatus
func (s BatchStatus) IsValid() bool {
	return s == BatchStatusRunning || s == BatchStatusCompleted || s == BatchStatusFailed
}

// DateLayout is the textual form of a reconciliation date
const DateLayout = "2006-01-02"

// Batch is one reconciliation run for a (date, payment type) pair
type Batch struct {
	shared.BaseAggregateRoot

	BatchNo            string
	ReconciliationDate time.Time
	PaymentType        payment.PaymentType
	Status             BatchStatus
	InternalCount      int
	ExternalCount      int
	InternalTotal      decimal.Decimal
	ExternalTotal      decimal.Decimal
	MatchedCount       int
	DiffCount          int
	FailReason         string
	StartedAt          time.Time
	FinishedAt         *time.Time
}

// NewBatch creates a RUNNING batch for the calendar day of date
func NewBatch(date time.Time, paymentType payment.PaymentType) (*Batch, error) {
	if date.IsZero() {
		return nil, shared.NewValidationError("reconciliation date is required")
	}
	if !paymentType.IsValid() {
		return nil, shared.NewValidationError("invalid payment type %q", paymentType)
	}
	day := TruncateDay(date)
	return &Batch{
		BaseAggregateRoot:  shared.NewBaseAggregateRoot(),
		BatchNo:            NewBatchNo(day, paymentType),
		ReconciliationDate: day,
		PaymentType:        paymentType,
		Status:             BatchStatusRunning,
		InternalTotal:      decimal.Zero,
		ExternalTotal:      decimal.Zero,
		StartedAt:          time.Now(),
	}, nil
}

// NewBatchNo returns "RCB" + yyyyMMdd + type code + 6 random digits
func NewBatchNo(date time.Time, paymentType payment.PaymentType) string {
	return "RCB" + date.Format("20060102") + paymentType.Code() + payment.RandomDigits(6)
}

// TruncateDay returns midnight of t in t's location
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Window returns the [from, to) interval covered by the batch
func (b *Batch) Window() (from, to time.Time) {
	return b.ReconciliationDate, b.ReconciliationDate.AddDate(0, 0, 1)
}

// DateString formats the reconciliation date as YYYY-MM-DD
func (b *Batch) DateString() string {
	return b.ReconciliationDate.Format(DateLayout)
}

// Complete records the outcome of a successful comparison
func (b *Batch) Complete(res *MatchResult) error {
	if b.Status != BatchStatusRunning {
		return shared.NewReconciliationConflictError("batch %s is %s, not RUNNING", b.BatchNo, b.Status)
	}
	now := time.Now()
	b.InternalCount = res.InternalCount
	b.ExternalCount = res.ExternalCount
	b.InternalTotal = res.InternalTotal
	b.ExternalTotal = res.ExternalTotal
	b.MatchedCount = res.MatchedCount()
	b.DiffCount = len(res.Records) - b.MatchedCount
	b.Status = BatchStatusCompleted
	b.FinishedAt = &now
	b.IncrementVersion()
	return nil
}

// Fail marks the batch FAILED with reason
func (b *Batch) Fail(reason string) error {
	if b.Status != BatchStatusRunning {
		return shared.NewReconciliationConflictError("batch %s is %s, not RUNNING", b.BatchNo, b.Status)
	}
	now := time.Now()
	if len(reason) > 500 {
		reason = reason[:500]
	}
	b.Status = BatchStatusFailed
	b.FailReason = reason
	b.FinishedAt = &now
	b.IncrementVersion()
	return nil
}
