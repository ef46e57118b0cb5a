package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/payment"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/event"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/persistence/models"
)

// newTestDB opens a private in-memory database with the service schema
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.PaymentModel{},
		&models.RefundRecordModel{},
		&models.ReconciliationBatchModel{},
		&models.ReconciliationRecordModel{},
		&models.OutboxEntryModel{},
		&models.BalanceAccountModel{},
		&models.BalanceTransactionModel{},
	))
	require.NoError(t, db.Exec(`CREATE UNIQUE INDEX uq_batch_running ON reconciliation_batches
		(reconciliation_date, payment_type) WHERE status = 'RUNNING'`).Error)
	return db
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return db, mock
}

func newOutboxSinks() *event.OutboxPublisher {
	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	return event.NewOutboxPublisher(serializer, 5)
}

func newTestPayment(t *testing.T, orderNo string, paymentType payment.PaymentType, amount string) *payment.Payment {
	t.Helper()
	p, err := payment.NewPayment(payment.NewPaymentNo(time.Now()), orderNo, "u-1", decimal.RequireFromString(amount), paymentType)
	require.NoError(t, err)
	return p
}

// savePaid stores a payment that settled at payTime
func savePaid(t *testing.T, repo *GormPaymentRepository, orderNo string, paymentType payment.PaymentType, amount string, payTime time.Time) *payment.Payment {
	t.Helper()
	ctx := context.Background()
	p := newTestPayment(t, orderNo, paymentType, amount)
	require.NoError(t, repo.Create(ctx, p))

	v := p.Version
	require.NoError(t, p.MarkPending())
	require.NoError(t, repo.SaveWithLock(ctx, p, v))

	v = p.Version
	_, err := p.ConfirmPaid("T-"+p.PaymentNo, payTime)
	require.NoError(t, err)
	require.NoError(t, repo.SaveWithLock(ctx, p, v))
	p.ClearDomainEvents()
	return p
}
