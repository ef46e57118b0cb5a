package reconciliation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/reconciliation"
)

// StartInput is the request to open a batch
type StartInput struct {
	Date        string `json:"date" binding:"required"`
	PaymentType string `json:"payment_type" binding:"required"`
}

// RangeInput is the request to reconcile several days
type RangeInput struct {
	From        string `json:"from" binding:"required"`
	To          string `json:"to" binding:"required"`
	PaymentType string `json:"payment_type" binding:"required"`
}

// SolveInput is an operator's resolution of a diff
type SolveInput struct {
	Solution string `json:"solution" binding:"required,max=500"`
}

// BatchDTO is the external view of a batch
type BatchDTO struct {
	ID                 uuid.UUID       `json:"id"`
	BatchNo            string          `json:"batch_no"`
	ReconciliationDate string          `json:"reconciliation_date"`
	PaymentType        string          `json:"payment_type"`
	Status             string          `json:"status"`
	InternalCount      int             `json:"internal_count"`
	ExternalCount      int             `json:"external_count"`
	InternalTotal      decimal.Decimal `json:"internal_total"`
	ExternalTotal      decimal.Decimal `json:"external_total"`
	MatchedCount       int             `json:"matched_count"`
	DiffCount          int             `json:"diff_count"`
	FailReason         string          `json:"fail_reason,omitempty"`
	StartedAt          time.Time       `json:"started_at"`
	FinishedAt         *time.Time      `json:"finished_at,omitempty"`
	Version            int             `json:"version"`
}

// RecordDTO is the external view of a reconciliation record
type RecordDTO struct {
	ID             uuid.UUID        `json:"id"`
	BatchNo        string           `json:"batch_no"`
	PaymentNo      string           `json:"payment_no,omitempty"`
	TransactionID  string           `json:"transaction_id,omitempty"`
	OrderNo        string           `json:"order_no,omitempty"`
	InternalAmount *decimal.Decimal `json:"internal_amount,omitempty"`
	ExternalAmount *decimal.Decimal `json:"external_amount,omitempty"`
	DiffAmount     decimal.Decimal  `json:"diff_amount"`
	DiffType       string           `json:"diff_type"`
	Resolution     string           `json:"resolution,omitempty"`
	Solver         string           `json:"solver,omitempty"`
	SolvedAt       *time.Time       `json:"solved_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// DiffListDTO is one page of records
type DiffListDTO struct {
	Items    []RecordDTO `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// ReportDTO is the per-diff-type summary of a batch
type ReportDTO struct {
	Batch       BatchDTO                    `json:"batch"`
	Lines       []reconciliation.ReportLine `json:"lines"`
	TotalCount  int                         `json:"total_count"`
	Unresolved  int                         `json:"unresolved"`
	GeneratedAt time.Time                   `json:"generated_at"`
}

// ExportResult is a rendered report file
type ExportResult struct {
	FileName    string     `json:"file_name"`
	ContentType string     `json:"content_type"`
	Data        []byte     `json:"-"`
	DownloadURL string     `json:"download_url,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// RangeFailure is a day ReconcileRange could not finish
type RangeFailure struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

// RangeResult reports what ReconcileRange did per day
type RangeResult struct {
	Batches []BatchDTO     `json:"batches"`
	Skipped []string       `json:"skipped,omitempty"`
	Failed  []RangeFailure `json:"failed,omitempty"`
}

// ToBatchDTO converts a domain batch
func ToBatchDTO(b *reconciliation.Batch) *BatchDTO {
	return &BatchDTO{
		ID:                 b.ID,
		BatchNo:            b.BatchNo,
		ReconciliationDate: b.DateString(),
		PaymentType:        b.PaymentType.String(),
		Status:             b.Status.String(),
		InternalCount:      b.InternalCount,
		ExternalCount:      b.ExternalCount,
		InternalTotal:      b.InternalTotal,
		ExternalTotal:      b.ExternalTotal,
		MatchedCount:       b.MatchedCount,
		DiffCount:          b.DiffCount,
		FailReason:         b.FailReason,
		StartedAt:          b.StartedAt,
		FinishedAt:         b.FinishedAt,
		Version:            b.GetVersion(),
	}
}

// ToRecordDTO converts a domain record
func ToRecordDTO(r *reconciliation.Record) RecordDTO {
	return RecordDTO{
		ID:             r.ID,
		BatchNo:        r.BatchNo,
		PaymentNo:      r.PaymentNo,
		TransactionID:  r.TransactionID,
		OrderNo:        r.OrderNo,
		InternalAmount: r.InternalAmount,
		ExternalAmount: r.ExternalAmount,
		DiffAmount:     r.DiffAmount,
		DiffType:       r.DiffType.String(),
		Resolution:     r.Resolution,
		Solver:         r.Solver,
		SolvedAt:       r.SolvedAt,
		CreatedAt:      r.CreatedAt,
	}
}

func toRecordDTOs(records []*reconciliation.Record) []RecordDTO {
	out := make([]RecordDTO, 0, len(records))
	for _, r := range records {
		out = append(out, ToRecordDTO(r))
	}
	return out
}
