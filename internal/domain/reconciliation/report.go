package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReportLine aggregates the records of one diff type
type ReportLine struct {
	DiffType      DiffType        `json:"diff_type"`
	Count         int             `json:"count"`
	InternalTotal decimal.Decimal `json:"internal_total"`
	ExternalTotal decimal.Decimal `json:"external_total"`
	DiffTotal     decimal.Decimal `json:"diff_total"`
	Unresolved    int             `json:"unresolved"`
}

// Report summarizes a batch
type Report struct {
	Batch       *Batch       `json:"-"`
	Lines       []ReportLine `json:"lines"`
	TotalCount  int          `json:"total_count"`
	Unresolved  int          `json:"unresolved"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// Line returns the line for t
func (r *Report) Line(t DiffType) ReportLine {
	for _, l := range r.Lines {
		if l.DiffType == t {
			return l
		}
	}
	return ReportLine{DiffType: t}
}

// BuildReport aggregates records by diff type. Every diff type gets a line,
// including empty ones.
func BuildReport(batch *Batch, records []*Record) *Report {
	idx := make(map[DiffType]int)
	lines := make([]ReportLine, 0, 4)
	for i, t := range AllDiffTypes() {
		idx[t] = i
		lines = append(lines, ReportLine{
			DiffType:      t,
			InternalTotal: decimal.Zero,
			ExternalTotal: decimal.Zero,
			DiffTotal:     decimal.Zero,
		})
	}

	rep := &Report{Batch: batch, GeneratedAt: time.Now()}
	for _, rec := range records {
		i, ok := idx[rec.DiffType]
		if !ok {
			continue
		}
		l := &lines[i]
		l.Count++
		if rec.InternalAmount != nil {
			l.InternalTotal = l.InternalTotal.Add(*rec.InternalAmount)
		}
		if rec.ExternalAmount != nil {
			l.ExternalTotal = l.ExternalTotal.Add(*rec.ExternalAmount)
		}
		l.DiffTotal = l.DiffTotal.Add(rec.DiffAmount)
		if rec.DiffType != DiffTypeMatched && !rec.IsResolved() {
			l.Unresolved++
			rep.Unresolved++
		}
		rep.TotalCount++
	}
	rep.Lines = lines
	return rep
}

// Statistics summarizes batches over a date range
type Statistics struct {
	From           time.Time        `json:"from"`
	To             time.Time        `json:"to"`
	BatchCount     int              `json:"batch_count"`
	CompletedCount int              `json:"completed_count"`
	FailedCount    int              `json:"failed_count"`
	RunningCount   int              `json:"running_count"`
	MatchedCount   int              `json:"matched_count"`
	DiffCount      int              `json:"diff_count"`
	InternalTotal  decimal.Decimal  `json:"internal_total"`
	ExternalTotal  decimal.Decimal  `json:"external_total"`
	ByDiffType     map[DiffType]int `json:"by_diff_type"`
	Unresolved     int              `json:"unresolved"`
}

// BuildStatistics folds batches and their per-type counts into Statistics
func BuildStatistics(from, to time.Time, batches []*Batch, byType map[DiffType]int, unresolved int) *Statistics {
	st := &Statistics{
		From:          from,
		To:            to,
		InternalTotal: decimal.Zero,
		ExternalTotal: decimal.Zero,
		ByDiffType:    make(map[DiffType]int, 4),
		Unresolved:    unresolved,
	}
	for _, t := range AllDiffTypes() {
		st.ByDiffType[t] = byType[t]
	}
	for _, b := range batches {
		st.BatchCount++
		switch b.Status {
		case BatchStatusCompleted:
			st.CompletedCount++
		case BatchStatusFailed:
			st.FailedCount++
		case BatchStatusRunning:
			st.RunningCount++
		}
		st.MatchedCount += b.MatchedCount
		st.DiffCount += b.DiffCount
		st.InternalTotal = st.InternalTotal.Add(b.InternalTotal)
		st.ExternalTotal = st.ExternalTotal.Add(b.ExternalTotal)
	}
	return st
}
