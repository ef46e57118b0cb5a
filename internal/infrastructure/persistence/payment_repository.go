package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/persistence/models"
)

const defaultPaymentListLimit = 100

// GormPaymentRepository implements payment.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.first(ctx, "id = ?", id)
}

// FindByPaymentNo finds a payment by its payment number
func (r *GormPaymentRepository) FindByPaymentNo(ctx context.Context, paymentNo string) (*payment.Payment, error) {
	return r.first(ctx, "payment_no = ?", paymentNo)
}

// FindActiveByOrderNo returns the newest payment for orderNo that has not failed
func (r *GormPaymentRepository) FindActiveByOrderNo(ctx context.Context, orderNo string) (*payment.Payment, error) {
	var model models.PaymentModel
	err := r.db.WithContext(ctx).
		Where("order_no = ? AND status <> ?", orderNo, payment.PaymentStatusFailed).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("no active payment for order %s", orderNo)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Find lists payments matching filter, newest first unless filter sorts otherwise
func (r *GormPaymentRepository) Find(ctx context.Context, filter payment.PaymentFilter) ([]*payment.Payment, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentModel{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PaymentType != "" {
		query = query.Where("payment_type = ?", filter.PaymentType)
	}
	if filter.OrderNo != "" {
		query = query.Where("order_no = ?", filter.OrderNo)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPaymentListLimit
	}

	var paymentModels []models.PaymentModel
	order := ValidateSortField(filter.SortBy, PaymentSortFields, "created_at") + " " + ValidateSortOrder(filter.SortOrder)
	if err := query.Order(order).Limit(limit).Find(&paymentModels).Error; err != nil {
		return nil, err
	}
	return paymentsToDomain(paymentModels), nil
}

// FindSettledBetween returns settled payments of paymentType paid in [from, to)
func (r *GormPaymentRepository) FindSettledBetween(ctx context.Context, paymentType payment.PaymentType, from, to time.Time) ([]*payment.Payment, error) {
	var paymentModels []models.PaymentModel
	err := r.db.WithContext(ctx).
		Where("payment_type = ? AND pay_time >= ? AND pay_time < ?", paymentType, from, to).
		Where("status IN ?", []payment.PaymentStatus{
			payment.PaymentStatusPaid,
			payment.PaymentStatusRefunding,
			payment.PaymentStatusRefunded,
		}).
		Order("pay_time ASC").
		Find(&paymentModels).Error
	if err != nil {
		return nil, err
	}
	return paymentsToDomain(paymentModels), nil
}

// Create inserts a new payment. A duplicate payment number is reported as a
// duplicate request.
func (r *GormPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	model := models.PaymentModelFromDomain(p)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.NewDuplicateRequestError("payment %s already exists", p.PaymentNo)
		}
		return err
	}
	return nil
}

// SaveWithLock updates p if the stored version is still expectedVersion
func (r *GormPaymentRepository) SaveWithLock(ctx context.Context, p *payment.Payment, expectedVersion int) error {
	result := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("id = ? AND version = ?", p.ID, expectedVersion).
		Updates(map[string]any{
			"status":          p.Status,
			"transaction_id":  p.TransactionID,
			"pay_time":        p.PayTime,
			"refunded_amount": p.RefundedAmount,
			"fail_reason":     p.FailReason,
			"version":         p.Version,
			"updated_at":      p.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return versionConflict(ctx, r.db, &models.PaymentModel{}, p.ID, "payment "+p.PaymentNo)
	}
	return nil
}

func (r *GormPaymentRepository) first(ctx context.Context, query string, arg any) (*payment.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("payment %v not found", arg)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

func paymentsToDomain(paymentModels []models.PaymentModel) []*payment.Payment {
	payments := make([]*payment.Payment, len(paymentModels))
	for i := range paymentModels {
		payments[i] = paymentModels[i].ToDomain()
	}
	return payments
}

// versionConflict explains a zero-row versioned update: the row is either
// gone or was changed by someone else.
func versionConflict(ctx context.Context, db *gorm.DB, model any, id uuid.UUID, what string) error {
	var count int64
	if err := db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.NewNotFoundError("%s not found", what)
	}
	return shared.NewConcurrentModificationError("%s was modified concurrently", what)
}

var (
	_ payment.PaymentRepository = (*GormPaymentRepository)(nil)
	_ payment.PaymentReader     = (*GormPaymentRepository)(nil)
)
