package event

import (
	"context"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/persistence/models"
)

const testRoutingKey = "test.routed"

// testEvent is a routable event for tests
type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func (e *testEvent) RoutingKey() string { return testRoutingKey }

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New(), "P20240501120000"+uuid.NewString()[:6]),
		Data:            "test data",
	}
}

// plainEvent has no routing key
type plainEvent struct {
	shared.BaseDomainEvent
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

// setupSQLiteDB opens a private in-memory database with the outbox table
func setupSQLiteDB(t *testing.T) *gorm.DB {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.OutboxEntryModel{}))
	return db
}

// recordingHandler records deliveries and fails the first failures of them
type recordingHandler struct {
	mu       sync.Mutex
	got      []*shared.Message
	failures int
	err      error
	done     chan struct{}
	want     int
}

func newRecordingHandler(want int) *recordingHandler {
	return &recordingHandler{done: make(chan struct{}), want: want}
}

func (h *recordingHandler) Handle(_ context.Context, msg *shared.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, msg)
	if len(h.got) == h.want {
		close(h.done)
	}
	if h.failures > 0 {
		h.failures--
		return h.err
	}
	return nil
}

func (h *recordingHandler) messages() []*shared.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*shared.Message, len(h.got))
	copy(out, h.got)
	return out
}
