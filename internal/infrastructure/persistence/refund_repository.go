package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/persistence/models"
)

// GormRefundRepository implements payment.RefundRepository using GORM
type GormRefundRepository struct {
	db *gorm.DB
}

// NewGormRefundRepository creates a new GormRefundRepository
func NewGormRefundRepository(db *gorm.DB) *GormRefundRepository {
	return &GormRefundRepository{db: db}
}

// FindByRefundNo finds a refund record by refund number
func (r *GormRefundRepository) FindByRefundNo(ctx context.Context, refundNo string) (*payment.RefundRecord, error) {
	var model models.RefundRecordModel
	if err := r.db.WithContext(ctx).
		First(&model, "refund_no = ?", refundNo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("refund %s not found", refundNo)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByPaymentID lists a payment's refunds, oldest first
func (r *GormRefundRepository) FindByPaymentID(ctx context.Context, paymentID uuid.UUID) ([]*payment.RefundRecord, error) {
	var recordModels []models.RefundRecordModel
	if err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&recordModels).Error; err != nil {
		return nil, err
	}
	records := make([]*payment.RefundRecord, len(recordModels))
	for i := range recordModels {
		records[i] = recordModels[i].ToDomain()
	}
	return records, nil
}

// FindPendingByPaymentID returns the refund still awaiting the provider
func (r *GormRefundRepository) FindPendingByPaymentID(ctx context.Context, paymentID uuid.UUID) (*payment.RefundRecord, error) {
	var model models.RefundRecordModel
	if err := r.db.WithContext(ctx).
		Where("payment_id = ? AND status = ?", paymentID, payment.RefundStatusPending).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("no pending refund for payment %s", paymentID)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a refund record
func (r *GormRefundRepository) Create(ctx context.Context, refund *payment.RefundRecord) error {
	if err := r.db.WithContext(ctx).Create(models.RefundRecordModelFromDomain(refund)).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.NewDuplicateRequestError("refund %s already exists", refund.RefundNo)
		}
		return err
	}
	return nil
}

// SaveWithLock updates refund if the stored version is still expectedVersion
func (r *GormRefundRepository) SaveWithLock(ctx context.Context, refund *payment.RefundRecord, expectedVersion int) error {
	result := r.db.WithContext(ctx).
		Model(&models.RefundRecordModel{}).
		Where("id = ? AND version = ?", refund.ID, expectedVersion).
		Updates(map[string]any{
			"status":            refund.Status,
			"gateway_refund_id": refund.GatewayRefundID,
			"fail_reason":       refund.FailReason,
			"completed_at":      refund.CompletedAt,
			"failed_at":         refund.FailedAt,
			"version":           refund.Version,
			"updated_at":        refund.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return versionConflict(ctx, r.db, &models.RefundRecordModel{}, refund.ID, "refund "+refund.RefundNo)
	}
	return nil
}

var _ payment.RefundRepository = (*GormRefundRepository)(nil)
