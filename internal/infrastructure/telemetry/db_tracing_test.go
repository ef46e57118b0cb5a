package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type tracedRow struct {
	ID     uint `gorm:"primaryKey"`
	Amount string
}

func openTracedDB(t *testing.T, cfg DBTracingConfig) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, NewDBTracingPlugin(cfg, zap.NewNop()).RegisterOtelGorm(db))
	require.NoError(t, db.AutoMigrate(&tracedRow{}))
	return db
}

func TestDefaultDBTracingConfig(t *testing.T) {
	cfg := DefaultDBTracingConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 200*time.Millisecond, cfg.SlowQueryThresh)
}

func TestRegisterOtelGorm_Disabled(t *testing.T) {
	db := openTracedDB(t, DBTracingConfig{})
	assert.Nil(t, db.Callback().Query().Get("paycore_timing:after_query"))
}

func TestRegisterOtelGorm_Enabled(t *testing.T) {
	db := openTracedDB(t, DBTracingConfig{Enabled: true, DBSystem: "sqlite"})
	assert.NotNil(t, db.Callback().Query().Get("paycore_timing:after_query"))
	assert.NotNil(t, db.Callback().Create().Get("paycore_timing:before_create"))
	require.NoError(t, db.Create(&tracedRow{Amount: "10.00"}).Error)
}

func TestAnnotateSpan_SlowQuery(t *testing.T) {
	sr := setupTestTracer(t)
	db := openTracedDB(t, DBTracingConfig{})
	plugin := NewDBTracingPlugin(DBTracingConfig{Enabled: true, SlowQueryThresh: 100 * time.Millisecond}, zap.NewNop())

	ctx, span := otel.Tracer("test").Start(context.Background(), "db.query")
	tx := db.WithContext(ctx)
	tx.Statement.Context = context.WithValue(ctx, queryStartKey{}, time.Now().Add(-time.Second))
	tx.Statement.Table = "payments"
	tx.Statement.RowsAffected = 3
	plugin.annotateSpan(tx)
	span.End()

	attrs := map[string]string{}
	for _, kv := range sr.Ended()[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "true", attrs["db.slow_query"])
	assert.Equal(t, "payments", attrs["db.sql.table"])
	assert.Equal(t, "3", attrs["db.rows_affected"])
}
