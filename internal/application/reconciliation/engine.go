// Package reconciliation compares the ledger with provider statements.
package reconciliation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/reconciliation"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/logger"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/telemetry"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	maxRangeDays    = 31

	defaultUnresolvedLimit = 50
)

// ReportArchive stores exported reports and returns a download link
type ReportArchive interface {
	Archive(ctx context.Context, name string, data []byte, contentType string) (url string, expiresAt time.Time, err error)
}

// EngineConfig holds the collaborators of the engine
type EngineConfig struct {
	Store    reconciliation.Store
	Payments payment.PaymentReader
	Gateways payment.GatewayRegistry
	// Archive is optional; without it exports are returned inline only
	Archive ReportArchive
	Metrics *telemetry.PaymentMetrics
	Logger  *zap.Logger

	// Epsilon is the largest amount difference still counted as MATCHED
	Epsilon decimal.Decimal
	// Location defines calendar days. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

// Engine runs reconciliation batches. It reads the ledger but never writes
// payments; differences are resolved by operators through SolveDiff.
type Engine struct {
	store    reconciliation.Store
	payments payment.PaymentReader
	gateways payment.GatewayRegistry
	archive  ReportArchive
	matcher  *reconciliation.Matcher
	metrics  *telemetry.PaymentMetrics
	logger   *zap.Logger
	location *time.Location
	now      func() time.Time
}

// NewEngine creates a new Engine
func NewEngine(config EngineConfig) *Engine {
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopPaymentMetrics()
	}
	loc := config.Location
	if loc == nil {
		loc = time.UTC
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:    config.Store,
		payments: config.Payments,
		gateways: config.Gateways,
		archive:  config.Archive,
		matcher:  reconciliation.NewMatcher(config.Epsilon.Abs()),
		metrics:  metrics,
		logger:   log,
		location: loc,
		now:      now,
	}
}

// Location returns the zone calendar days are computed in
func (e *Engine) Location() *time.Location {
	return e.location
}

// ParseDate parses YYYY-MM-DD in the engine's zone
func (e *Engine) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(reconciliation.DateLayout, strings.TrimSpace(s), e.location)
	if err != nil {
		return time.Time{}, shared.NewValidationError("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}

func (e *Engine) log(ctx context.Context) *logger.ContextLogger {
	return logger.WithLogger(ctx, e.logger)
}

// StartReconciliation opens a RUNNING batch for the day of date. Only one
// batch per (date, payment type) may run at a time.
func (e *Engine) StartReconciliation(ctx context.Context, date time.Time, paymentType payment.PaymentType) (*BatchDTO, error) {
	if !paymentType.IsValid() {
		return nil, shared.NewValidationError("invalid payment type %q", paymentType)
	}
	if _, err := e.gateways.Get(paymentType); err != nil {
		return nil, err
	}
	day := reconciliation.TruncateDay(date.In(e.location))
	if day.After(e.now().In(e.location)) {
		return nil, shared.NewValidationError("cannot reconcile future date %s", day.Format(reconciliation.DateLayout))
	}

	running, err := e.store.Batches().FindRunning(ctx, day, paymentType)
	if err != nil && !shared.IsNotFound(err) {
		return nil, err
	}
	if running != nil {
		return nil, shared.NewReconciliationConflictError("batch %s is already running for %s %s",
			running.BatchNo, day.Format(reconciliation.DateLayout), paymentType)
	}

	batch, err := reconciliation.NewBatch(day, paymentType)
	if err != nil {
		return nil, err
	}
	if err := e.store.Batches().Create(ctx, batch); err != nil {
		return nil, err
	}

	e.log(logger.WithBatchNo(ctx, batch.BatchNo)).Info("reconciliation batch started",
		zap.String("date", batch.DateString()),
		zap.String("payment_type", paymentType.String()))
	return ToBatchDTO(batch), nil
}

// ExecuteReconciliation compares the ledger with the provider statement for a
// RUNNING batch and stores one record per joined pair. A statement that
// cannot be loaded fails the batch; the error is returned alongside it.
func (e *Engine) ExecuteReconciliation(ctx context.Context, batchNo string) (*BatchDTO, error) {
	ctx = logger.WithBatchNo(ctx, batchNo)
	batch, err := e.store.Batches().FindByBatchNo(ctx, batchNo)
	if err != nil {
		return nil, err
	}
	if batch.Status != reconciliation.BatchStatusRunning {
		return nil, shared.NewReconciliationConflictError("batch %s is %s, not RUNNING", batchNo, batch.Status)
	}

	gateway, err := e.gateways.Get(batch.PaymentType)
	if err != nil {
		return e.failBatch(ctx, batch, err)
	}

	from, to := batch.Window()
	internal, err := e.payments.FindSettledBetween(ctx, batch.PaymentType, from, to)
	if err != nil {
		return e.failBatch(ctx, batch, fmt.Errorf("load ledger payments: %w", err))
	}

	started := time.Now()
	statement, err := gateway.FetchStatement(ctx, batch.ReconciliationDate)
	e.metrics.GatewayCall(ctx, batch.PaymentType.String(), "statement", time.Since(started), err)
	if err != nil {
		return e.failBatch(ctx, batch, err)
	}

	result := e.matcher.Match(batch.BatchNo, internal, statement)

	version := batch.GetVersion()
	if err := batch.Complete(result); err != nil {
		return nil, err
	}
	var alerts []*reconciliation.Record
	for _, rec := range result.Records {
		if rec.DiffType == reconciliation.DiffTypeMissingInternal {
			alerts = append(alerts, rec)
		}
	}

	err = e.store.InTx(ctx, func(tx reconciliation.Tx) error {
		if err := tx.Records().CreateInBatches(ctx, result.Records); err != nil {
			return err
		}
		if err := tx.Batches().SaveWithLock(ctx, batch, version); err != nil {
			return err
		}
		if len(alerts) == 0 {
			return nil
		}
		events := make([]shared.DomainEvent, 0, len(alerts))
		for _, rec := range alerts {
			events = append(events, reconciliation.NewIntegrityAlertEvent(batch, rec))
		}
		return tx.Events().Save(ctx, events...)
	})
	if err != nil {
		return nil, err
	}

	paymentType := batch.PaymentType.String()
	for _, rec := range alerts {
		e.log(ctx).Error("integrity alert: provider charge has no ledger payment",
			zap.String("payment_type", paymentType),
			zap.String("transaction_id", rec.TransactionID),
			zap.String("payment_no", rec.PaymentNo),
			zap.Stringer("external_amount", rec.ExternalAmount))
		e.metrics.IntegrityAlert(ctx, paymentType)
	}
	for _, t := range reconciliation.AllDiffTypes() {
		if t == reconciliation.DiffTypeMatched {
			continue
		}
		if n := result.Count(t); n > 0 {
			e.metrics.Diffs(ctx, paymentType, t.String(), n)
		}
	}

	e.log(ctx).Info("reconciliation batch completed",
		zap.Int("internal_count", batch.InternalCount),
		zap.Int("external_count", batch.ExternalCount),
		zap.Int("matched", batch.MatchedCount),
		zap.Int("diffs", batch.DiffCount))
	return ToBatchDTO(batch), nil
}

func (e *Engine) failBatch(ctx context.Context, batch *reconciliation.Batch, cause error) (*BatchDTO, error) {
	version := batch.GetVersion()
	if err := batch.Fail(cause.Error()); err != nil {
		return nil, err
	}
	if err := e.store.Batches().SaveWithLock(ctx, batch, version); err != nil {
		e.log(ctx).Error("failed to mark batch FAILED", zap.Error(err), zap.NamedError("cause", cause))
		return nil, err
	}
	e.log(ctx).Warn("reconciliation batch failed", zap.Error(cause))
	return ToBatchDTO(batch), cause
}

// Reconcile starts and executes a batch in one call
func (e *Engine) Reconcile(ctx context.Context, date time.Time, paymentType payment.PaymentType) (*BatchDTO, error) {
	batch, err := e.StartReconciliation(ctx, date, paymentType)
	if err != nil {
		return nil, err
	}
	return e.ExecuteReconciliation(ctx, batch.BatchNo)
}

// ReconcileRange reconciles every day in [from, to], both ends inclusive.
// Days that already have a RUNNING batch are skipped and a failing day does
// not stop the rest.
func (e *Engine) ReconcileRange(ctx context.Context, from, to time.Time, paymentType payment.PaymentType) (*RangeResult, error) {
	first := reconciliation.TruncateDay(from.In(e.location))
	last := reconciliation.TruncateDay(to.In(e.location))
	if last.Before(first) {
		return nil, shared.NewValidationError("range end is before its start")
	}
	if last.Sub(first) >= maxRangeDays*24*time.Hour {
		return nil, shared.NewValidationError("range cannot exceed %d days", maxRangeDays)
	}

	res := &RangeResult{Batches: []BatchDTO{}}
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		date := day.Format(reconciliation.DateLayout)
		batch, err := e.Reconcile(ctx, day, paymentType)
		switch {
		case err == nil:
			res.Batches = append(res.Batches, *batch)
		case shared.IsReconciliationConflict(err):
			res.Skipped = append(res.Skipped, date)
		default:
			if batch != nil {
				res.Batches = append(res.Batches, *batch)
			}
			res.Failed = append(res.Failed, RangeFailure{Date: date, Error: err.Error()})
		}
	}
	return res, nil
}

// GetBatch returns a batch by number
func (e *Engine) GetBatch(ctx context.Context, batchNo string) (*BatchDTO, error) {
	batch, err := e.store.Batches().FindByBatchNo(ctx, batchNo)
	if err != nil {
		return nil, err
	}
	return ToBatchDTO(batch), nil
}

// ListDiffs pages through the records of a batch
func (e *Engine) ListDiffs(ctx context.Context, batchNo string, filter reconciliation.RecordFilter) (*DiffListDTO, error) {
	if filter.DiffType != "" && !filter.DiffType.IsValid() {
		return nil, shared.NewValidationError("invalid diff type %q", filter.DiffType)
	}
	if _, err := e.store.Batches().FindByBatchNo(ctx, batchNo); err != nil {
		return nil, err
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	} else if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}

	records, total, err := e.store.Records().FindByBatchNo(ctx, batchNo, filter)
	if err != nil {
		return nil, err
	}
	return &DiffListDTO{
		Items:    toRecordDTOs(records),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// ListUnresolved returns unresolved differences across batches, oldest first
func (e *Engine) ListUnresolved(ctx context.Context, limit int) ([]RecordDTO, error) {
	if limit <= 0 {
		limit = defaultUnresolvedLimit
	} else if limit > maxPageSize {
		limit = maxPageSize
	}
	records, err := e.store.Records().FindUnresolved(ctx, limit)
	if err != nil {
		return nil, err
	}
	return toRecordDTOs(records), nil
}

// GenerateReport aggregates the records of a batch by diff type
func (e *Engine) GenerateReport(ctx context.Context, batchNo string) (*ReportDTO, error) {
	batch, records, err := e.loadBatch(ctx, batchNo)
	if err != nil {
		return nil, err
	}
	rep := reconciliation.BuildReport(batch, records)
	return &ReportDTO{
		Batch:       *ToBatchDTO(batch),
		Lines:       rep.Lines,
		TotalCount:  rep.TotalCount,
		Unresolved:  rep.Unresolved,
		GeneratedAt: rep.GeneratedAt,
	}, nil
}

func (e *Engine) loadBatch(ctx context.Context, batchNo string) (*reconciliation.Batch, []*reconciliation.Record, error) {
	batch, err := e.store.Batches().FindByBatchNo(ctx, batchNo)
	if err != nil {
		return nil, nil, err
	}
	records, _, err := e.store.Records().FindByBatchNo(ctx, batchNo, reconciliation.RecordFilter{})
	if err != nil {
		return nil, nil, err
	}
	return batch, records, nil
}

// SolveDiff records an operator's resolution of one difference. Payments are
// never touched; a second resolution of the same record is rejected.
func (e *Engine) SolveDiff(ctx context.Context, id uuid.UUID, solution, solver string) (*RecordDTO, error) {
	rec, err := e.store.Records().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rec.Solve(solution, solver, e.now()); err != nil {
		return nil, err
	}
	if err := e.store.Records().SaveResolution(ctx, rec); err != nil {
		return nil, err
	}
	e.log(logger.WithBatchNo(ctx, rec.BatchNo)).Info("reconciliation diff resolved",
		zap.String("record_id", id.String()),
		zap.String("diff_type", rec.DiffType.String()),
		zap.String("solver", rec.Solver))
	dto := ToRecordDTO(rec)
	return &dto, nil
}

// Statistics summarizes batches dated in [from, to], both ends inclusive
func (e *Engine) Statistics(ctx context.Context, from, to time.Time) (*reconciliation.Statistics, error) {
	first := reconciliation.TruncateDay(from.In(e.location))
	end := reconciliation.TruncateDay(to.In(e.location)).AddDate(0, 0, 1)
	if !end.After(first) {
		return nil, shared.NewValidationError("range end is before its start")
	}

	batches, err := e.store.Batches().FindBetween(ctx, first, end)
	if err != nil {
		return nil, err
	}
	byType, err := e.store.Records().CountByDiffType(ctx, first, end)
	if err != nil {
		return nil, err
	}
	unresolved, err := e.store.Records().CountUnresolved(ctx, first, end)
	if err != nil {
		return nil, err
	}
	return reconciliation.BuildStatistics(first, end, batches, byType, unresolved), nil
}
