package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
)

// BalanceAccountModel holds one user's stored-value balance
type BalanceAccountModel struct {
	UserID    string          `gorm:"type:varchar(64);primaryKey"`
	Balance   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	Version   int             `gorm:"not null;default:1"`
	CreatedAt time.Time       `gorm:"not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BalanceAccountModel) TableName() string {
	return "balance_accounts"
}

// Balance transaction directions
const (
	BalanceDirectionDebit  = "DEBIT"
	BalanceDirectionCredit = "CREDIT"
)

// BalanceTransactionModel is one movement on a balance account. Reference
// and Direction together are unique so debits and credits are idempotent.
type BalanceTransactionModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TransactionID string          `gorm:"type:varchar(32);not null;uniqueIndex"`
	UserID        string          `gorm:"type:varchar(64);not null;index"`
	Direction     string          `gorm:"type:varchar(10);not null;uniqueIndex:uq_balance_tx_reference,priority:2;index:idx_balance_tx_direction_time,priority:1"`
	Reference     string          `gorm:"type:varchar(64);not null;uniqueIndex:uq_balance_tx_reference,priority:1"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	CreatedAt     time.Time       `gorm:"not null;index:idx_balance_tx_direction_time,priority:2"`
}

// TableName returns the table name for GORM
func (BalanceTransactionModel) TableName() string {
	return "balance_transactions"
}

// ToDomain converts the persistence model to a domain BalanceTrade
func (m *BalanceTransactionModel) ToDomain() *payment.BalanceTrade {
	return &payment.BalanceTrade{
		TransactionID: m.TransactionID,
		UserID:        m.UserID,
		Reference:     m.Reference,
		Amount:        m.Amount,
		Credit:        m.Direction == BalanceDirectionCredit,
		CreatedAt:     m.CreatedAt,
	}
}
