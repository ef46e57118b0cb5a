package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/reconciliation"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/persistence/models"
)

const recordInsertBatchSize = 500

// GormBatchRepository implements reconciliation.BatchRepository using GORM
type GormBatchRepository struct {
	db *gorm.DB
}

// NewGormBatchRepository creates a new GormBatchRepository
func NewGormBatchRepository(db *gorm.DB) *GormBatchRepository {
	return &GormBatchRepository{db: db}
}

// Create inserts a RUNNING batch. The partial unique index on RUNNING
// batches rejects a second concurrent run for the same day and type.
func (r *GormBatchRepository) Create(ctx context.Context, b *reconciliation.Batch) error {
	if err := r.db.WithContext(ctx).Create(models.ReconciliationBatchModelFromDomain(b)).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.NewReconciliationConflictError("a %s reconciliation for %s is already running",
				b.PaymentType, b.DateString())
		}
		return err
	}
	return nil
}

// FindByBatchNo finds a batch by its number
func (r *GormBatchRepository) FindByBatchNo(ctx context.Context, batchNo string) (*reconciliation.Batch, error) {
	var model models.ReconciliationBatchModel
	if err := r.db.WithContext(ctx).First(&model, "batch_no = ?", batchNo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("batch %s not found", batchNo)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindRunning returns the RUNNING batch for date and paymentType
func (r *GormBatchRepository) FindRunning(ctx context.Context, date time.Time, paymentType payment.PaymentType) (*reconciliation.Batch, error) {
	var model models.ReconciliationBatchModel
	err := r.db.WithContext(ctx).
		Where("reconciliation_date = ? AND payment_type = ? AND status = ?",
			reconciliation.TruncateDay(date), paymentType, reconciliation.BatchStatusRunning).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("no running %s batch for %s", paymentType, date.Format(reconciliation.DateLayout))
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBetween lists batches dated in [from, to), oldest first
func (r *GormBatchRepository) FindBetween(ctx context.Context, from, to time.Time) ([]*reconciliation.Batch, error) {
	var batchModels []models.ReconciliationBatchModel
	if err := r.db.WithContext(ctx).
		Where("reconciliation_date >= ? AND reconciliation_date < ?", from, to).
		Order("reconciliation_date ASC, started_at ASC").
		Find(&batchModels).Error; err != nil {
		return nil, err
	}
	batches := make([]*reconciliation.Batch, len(batchModels))
	for i := range batchModels {
		batches[i] = batchModels[i].ToDomain()
	}
	return batches, nil
}

// SaveWithLock updates b if the stored version is still expectedVersion
func (r *GormBatchRepository) SaveWithLock(ctx context.Context, b *reconciliation.Batch, expectedVersion int) error {
	result := r.db.WithContext(ctx).
		Model(&models.ReconciliationBatchModel{}).
		Where("id = ? AND version = ?", b.ID, expectedVersion).
		Updates(map[string]any{
			"status":         b.Status,
			"internal_count": b.InternalCount,
			"external_count": b.ExternalCount,
			"internal_total": b.InternalTotal,
			"external_total": b.ExternalTotal,
			"matched_count":  b.MatchedCount,
			"diff_count":     b.DiffCount,
			"fail_reason":    b.FailReason,
			"finished_at":    b.FinishedAt,
			"version":        b.Version,
			"updated_at":     b.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return versionConflict(ctx, r.db, &models.ReconciliationBatchModel{}, b.ID, "batch "+b.BatchNo)
	}
	return nil
}

// GormRecordRepository implements reconciliation.RecordRepository using GORM
type GormRecordRepository struct {
	db *gorm.DB
}

// NewGormRecordRepository creates a new GormRecordRepository
func NewGormRecordRepository(db *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{db: db}
}

// CreateInBatches inserts records in chunks
func (r *GormRecordRepository) CreateInBatches(ctx context.Context, records []*reconciliation.Record) error {
	if len(records) == 0 {
		return nil
	}
	recordModels := make([]*models.ReconciliationRecordModel, len(records))
	for i, rec := range records {
		recordModels[i] = models.ReconciliationRecordModelFromDomain(rec)
	}
	return r.db.WithContext(ctx).CreateInBatches(recordModels, recordInsertBatchSize).Error
}

// FindByID finds a record by ID
func (r *GormRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*reconciliation.Record, error) {
	var model models.ReconciliationRecordModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("reconciliation record %s not found", id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByBatchNo lists a batch's records with optional filters and paging
func (r *GormRecordRepository) FindByBatchNo(ctx context.Context, batchNo string, filter reconciliation.RecordFilter) ([]*reconciliation.Record, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.ReconciliationRecordModel{}).Where("batch_no = ?", batchNo)
	if filter.DiffType != "" {
		query = query.Where("diff_type = ?", filter.DiffType)
	}
	if filter.Unresolved {
		query = query.Where("diff_type <> ? AND solved_at IS NULL", reconciliation.DiffTypeMatched)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var recordModels []models.ReconciliationRecordModel
	if err := query.Order("created_at ASC, id ASC").Find(&recordModels).Error; err != nil {
		return nil, 0, err
	}
	return recordsToDomain(recordModels), total, nil
}

// FindUnresolved lists unresolved differences across batches, oldest first
func (r *GormRecordRepository) FindUnresolved(ctx context.Context, limit int) ([]*reconciliation.Record, error) {
	query := r.db.WithContext(ctx).
		Where("diff_type <> ? AND solved_at IS NULL", reconciliation.DiffTypeMatched).
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var recordModels []models.ReconciliationRecordModel
	if err := query.Find(&recordModels).Error; err != nil {
		return nil, err
	}
	return recordsToDomain(recordModels), nil
}

// SaveResolution writes the resolution only while none is stored, so two
// operators racing on one record cannot both win.
func (r *GormRecordRepository) SaveResolution(ctx context.Context, rec *reconciliation.Record) error {
	result := r.db.WithContext(ctx).
		Model(&models.ReconciliationRecordModel{}).
		Where("id = ? AND solved_at IS NULL", rec.ID).
		Updates(map[string]any{
			"resolution": rec.Resolution,
			"solver":     rec.Solver,
			"solved_at":  rec.SolvedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, rec.ID); err != nil {
			return err
		}
		return shared.NewReconciliationConflictError("record %s already resolved", rec.ID)
	}
	return nil
}

// CountByDiffType counts records of batches dated in [from, to)
func (r *GormRecordRepository) CountByDiffType(ctx context.Context, from, to time.Time) (map[reconciliation.DiffType]int, error) {
	var rows []struct {
		DiffType reconciliation.DiffType
		Count    int
	}
	if err := r.recordsInWindow(ctx, from, to).
		Select("reconciliation_records.diff_type AS diff_type, COUNT(*) AS count").
		Group("reconciliation_records.diff_type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[reconciliation.DiffType]int, len(rows))
	for _, row := range rows {
		counts[row.DiffType] = row.Count
	}
	return counts, nil
}

// CountUnresolved counts unresolved differences of batches dated in [from, to)
func (r *GormRecordRepository) CountUnresolved(ctx context.Context, from, to time.Time) (int, error) {
	var count int64
	if err := r.recordsInWindow(ctx, from, to).
		Where("reconciliation_records.diff_type <> ? AND reconciliation_records.solved_at IS NULL", reconciliation.DiffTypeMatched).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (r *GormRecordRepository) recordsInWindow(ctx context.Context, from, to time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.ReconciliationRecordModel{}).
		Joins("JOIN reconciliation_batches ON reconciliation_batches.batch_no = reconciliation_records.batch_no").
		Where("reconciliation_batches.reconciliation_date >= ? AND reconciliation_batches.reconciliation_date < ?", from, to)
}

func recordsToDomain(recordModels []models.ReconciliationRecordModel) []*reconciliation.Record {
	records := make([]*reconciliation.Record, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	return records
}

var (
	_ reconciliation.BatchRepository  = (*GormBatchRepository)(nil)
	_ reconciliation.RecordRepository = (*GormRecordRepository)(nil)
)
