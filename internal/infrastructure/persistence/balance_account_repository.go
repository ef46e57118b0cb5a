package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/persistence/models"
)

// GormBalanceAccount implements payment.BalanceAccount using GORM. Each
// movement updates the account row and appends a transaction row in one
// database transaction.
type GormBalanceAccount struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormBalanceAccount creates a new GormBalanceAccount
func NewGormBalanceAccount(db *gorm.DB) *GormBalanceAccount {
	return &GormBalanceAccount{db: db, now: time.Now}
}

var errTradeExists = errors.New("balance trade already recorded")

// Debit takes amount from userID's balance. An existing debit with the same
// reference is returned unchanged.
func (r *GormBalanceAccount) Debit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (*payment.BalanceTrade, error) {
	return r.move(ctx, userID, amount, reference, models.BalanceDirectionDebit)
}

// Credit adds amount to userID's balance, opening the account if needed. An
// existing credit with the same reference is returned unchanged.
func (r *GormBalanceAccount) Credit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (*payment.BalanceTrade, error) {
	return r.move(ctx, userID, amount, reference, models.BalanceDirectionCredit)
}

func (r *GormBalanceAccount) move(ctx context.Context, userID string, amount decimal.Decimal, reference, direction string) (*payment.BalanceTrade, error) {
	if userID == "" || reference == "" {
		return nil, shared.NewValidationError("balance movement needs a user and a reference")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewValidationError("balance movement amount must be positive")
	}

	existing, err := r.findByReference(ctx, r.db, reference, direction)
	if err == nil {
		return existing.ToDomain(), nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}

	var trade *models.BalanceTransactionModel
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := r.lockAccount(tx, userID, direction == models.BalanceDirectionCredit)
		if err != nil {
			return err
		}

		after := account.Balance.Add(amount)
		if direction == models.BalanceDirectionDebit {
			if account.Balance.LessThan(amount) {
				return payment.ErrInsufficientBalance
			}
			after = account.Balance.Sub(amount)
		}

		now := r.now()
		result := tx.Model(&models.BalanceAccountModel{}).
			Where("user_id = ? AND version = ?", userID, account.Version).
			Updates(map[string]any{
				"balance":    after,
				"version":    account.Version + 1,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.NewConcurrentModificationError("balance account %s was modified concurrently", userID)
		}

		trade = &models.BalanceTransactionModel{
			ID:            uuid.New(),
			TransactionID: "BT" + now.Format("20060102150405") + payment.RandomDigits(6),
			UserID:        userID,
			Direction:     direction,
			Reference:     reference,
			Amount:        amount,
			BalanceBefore: account.Balance,
			BalanceAfter:  after,
			CreatedAt:     now,
		}
		if err := tx.Create(trade).Error; err != nil {
			if isDuplicateKey(err) {
				return errTradeExists
			}
			return err
		}
		return nil
	})

	switch {
	case errors.Is(err, errTradeExists):
		existing, findErr := r.findByReference(ctx, r.db, reference, direction)
		if findErr != nil {
			return nil, findErr
		}
		return existing.ToDomain(), nil
	case err != nil:
		if errors.Is(err, payment.ErrInsufficientBalance) || shared.CodeOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record balance %s for %s: %w", direction, reference, err)
	}
	return trade.ToDomain(), nil
}

// lockAccount reads the account row, creating an empty one for credits
func (r *GormBalanceAccount) lockAccount(tx *gorm.DB, userID string, create bool) (*models.BalanceAccountModel, error) {
	var account models.BalanceAccountModel
	err := tx.Where("user_id = ?", userID).First(&account).Error
	if err == nil {
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if !create {
		return nil, payment.ErrInsufficientBalance
	}
	now := r.now()
	account = models.BalanceAccountModel{
		UserID:    userID,
		Balance:   decimal.Zero,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Create(&account).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, shared.NewStateConflictError("balance account %s was opened concurrently", userID)
		}
		return nil, err
	}
	return &account, nil
}

// Balance returns userID's current balance; zero when no account exists
func (r *GormBalanceAccount) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var account models.BalanceAccountModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// FindTrade returns the oldest trade carrying reference
func (r *GormBalanceAccount) FindTrade(ctx context.Context, reference string) (*payment.BalanceTrade, error) {
	m, err := r.findByReference(ctx, r.db, reference, "")
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

func (r *GormBalanceAccount) findByReference(ctx context.Context, db *gorm.DB, reference, direction string) (*models.BalanceTransactionModel, error) {
	query := db.WithContext(ctx).Where("reference = ?", reference)
	if direction != "" {
		query = query.Where("direction = ?", direction)
	}
	var m models.BalanceTransactionModel
	if err := query.Order("created_at ASC").First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("balance trade %s not found", reference)
		}
		return nil, err
	}
	return &m, nil
}

// Debits lists debits created in [from, to), oldest first
func (r *GormBalanceAccount) Debits(ctx context.Context, from, to time.Time) ([]payment.BalanceTrade, error) {
	var rows []models.BalanceTransactionModel
	if err := r.db.WithContext(ctx).
		Where("direction = ? AND created_at >= ? AND created_at < ?", models.BalanceDirectionDebit, from, to).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	trades := make([]payment.BalanceTrade, len(rows))
	for i := range rows {
		trades[i] = *rows[i].ToDomain()
	}
	return trades, nil
}

var _ payment.BalanceAccount = (*GormBalanceAccount)(nil)
