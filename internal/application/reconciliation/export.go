package reconciliation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/reconciliation"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/export"
)

var recordHeaders = []string{
	"Record ID", "Payment No", "Transaction ID", "Order No",
	"Internal Amount", "External Amount", "Diff Amount", "Diff Type",
	"Resolution", "Solver", "Solved At",
}

// ExportReport renders the batch report as xlsx or csv. The xlsx file holds
// a summary sheet and a record sheet; csv carries the records only. When an
// archive is configured the file is uploaded and a download link returned.
func (e *Engine) ExportReport(ctx context.Context, batchNo, format string) (*ExportResult, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, shared.NewValidationError("%v", err)
	}
	batch, records, err := e.loadBatch(ctx, batchNo)
	if err != nil {
		return nil, err
	}

	recordSheet := recordsSheet(records)
	sheets := []export.Sheet{summarySheet(reconciliation.BuildReport(batch, records)), recordSheet}
	if f == export.FormatCSV {
		sheets = []export.Sheet{recordSheet}
	}
	data, err := export.Render(f, sheets...)
	if err != nil {
		return nil, fmt.Errorf("render %s report: %w", f, err)
	}

	res := &ExportResult{
		FileName:    fmt.Sprintf("reconciliation_%s.%s", batch.BatchNo, f.Extension()),
		ContentType: f.ContentType(),
		Data:        data,
	}
	if e.archive == nil {
		return res, nil
	}

	key := batch.DateString() + "/" + res.FileName
	url, expiresAt, err := e.archive.Archive(ctx, key, data, res.ContentType)
	if err != nil {
		// the file is still returned inline
		e.log(ctx).Warn("failed to archive reconciliation report",
			zap.String("batch_no", batch.BatchNo), zap.Error(err))
		return res, nil
	}
	res.DownloadURL = url
	res.ExpiresAt = &expiresAt
	return res, nil
}

func summarySheet(rep *reconciliation.Report) export.Sheet {
	b := rep.Batch
	rows := [][]any{
		{"Batch No", b.BatchNo},
		{"Reconciliation Date", b.DateString()},
		{"Payment Type", b.PaymentType.String()},
		{"Status", b.Status.String()},
		{"Internal Count", b.InternalCount},
		{"External Count", b.ExternalCount},
		{"Internal Total", b.InternalTotal.StringFixed(2)},
		{"External Total", b.ExternalTotal.StringFixed(2)},
		{},
		{"Diff Type", "Count", "Internal Total", "External Total", "Diff Total", "Unresolved"},
	}
	for _, l := range rep.Lines {
		rows = append(rows, []any{
			l.DiffType.String(), l.Count,
			l.InternalTotal.StringFixed(2), l.ExternalTotal.StringFixed(2), l.DiffTotal.StringFixed(2),
			l.Unresolved,
		})
	}
	return export.Sheet{Name: "Summary", Headers: []string{"Field", "Value"}, Rows: rows}
}

func recordsSheet(records []*reconciliation.Record) export.Sheet {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		solvedAt := ""
		if r.SolvedAt != nil {
			solvedAt = r.SolvedAt.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []any{
			r.ID.String(), r.PaymentNo, r.TransactionID, r.OrderNo,
			optionalAmount(r.InternalAmount), optionalAmount(r.ExternalAmount), r.DiffAmount.StringFixed(2),
			r.DiffType.String(), r.Resolution, r.Solver, solvedAt,
		})
	}
	return export.Sheet{Name: "Records", Headers: recordHeaders, Rows: rows}
}

func optionalAmount(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
