package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// mockOutboxRepoForService is a mock implementation for testing OutboxService
type mockOutboxRepoForService struct {
	entries map[uuid.UUID]*shared.OutboxEntry
	findErr error
}

func newMockOutboxRepoForService() *mockOutboxRepoForService {
	return &mockOutboxRepoForService{
		entries: make(map[uuid.UUID]*shared.OutboxEntry),
	}
}

func (r *mockOutboxRepoForService) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *mockOutboxRepoForService) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusPending {
			result = append(result, e)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

func (r *mockOutboxRepoForService) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *mockOutboxRepoForService) FindDead(ctx context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	if r.findErr != nil {
		return nil, 0, r.findErr
	}
	var result []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == shared.OutboxStatusDead {
			result = append(result, e)
		}
	}
	total := int64(len(result))

	// Apply pagination
	start := (page - 1) * pageSize
	if start >= len(result) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *mockOutboxRepoForService) FindByID(ctx context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	return nil, shared.NewNotFoundError("outbox entry %s not found", id)
}

func (r *mockOutboxRepoForService) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *mockOutboxRepoForService) ReclaimStale(ctx context.Context, claimedBefore time.Time) (int64, error) {
	return 0, nil
}

func (r *mockOutboxRepoForService) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	r.entries[entry.ID] = entry
	return nil
}

func (r *mockOutboxRepoForService) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (r *mockOutboxRepoForService) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func newDeadEntry() *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EventType:     "PaymentPaid",
		AggregateID:   uuid.New(),
		AggregateType: "Payment",
		RoutingKey:    "payment.success",
		CorrelationID: "P20240501120000123456:PaymentPaid",
		Status:        shared.OutboxStatusDead,
		RetryCount:    5,
		MaxRetries:    5,
		LastError:     "broker unavailable",
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
}

func TestOutboxService_GetDeadLetterEntries(t *testing.T) {
	logger := zap.NewNop()
	repo := newMockOutboxRepoForService()
	service := NewOutboxService(repo, logger)

	for i := 0; i < 5; i++ {
		entry := newDeadEntry()
		repo.entries[entry.ID] = entry
	}

	pendingEntry := &shared.OutboxEntry{
		ID:     uuid.New(),
		Status: shared.OutboxStatusPending,
	}
	repo.entries[pendingEntry.ID] = pendingEntry

	result, err := service.GetDeadLetterEntries(context.Background(), OutboxFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Total)
	assert.Len(t, result.Entries, 2)
	assert.Equal(t, 3, result.TotalPages)

	for _, entry := range result.Entries {
		assert.Equal(t, "DEAD", entry.Status)
		assert.Equal(t, "payment.success", entry.RoutingKey)
		assert.Equal(t, "P20240501120000123456:PaymentPaid", entry.CorrelationID)
	}
}

func TestOutboxService_GetDeadLetterEntries_DefaultsPaging(t *testing.T) {
	service := NewOutboxService(newMockOutboxRepoForService(), zap.NewNop())

	result, err := service.GetDeadLetterEntries(context.Background(), OutboxFilter{PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 100, result.PageSize)
	assert.Empty(t, result.Entries)
}

func TestOutboxService_GetEntry(t *testing.T) {
	repo := newMockOutboxRepoForService()
	service := NewOutboxService(repo, zap.NewNop())
	entry := newDeadEntry()
	repo.entries[entry.ID] = entry

	dto, err := service.GetEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.EventID, dto.EventID)

	_, err = service.GetEntry(context.Background(), uuid.New())
	assert.True(t, shared.IsNotFound(err))
}

func TestOutboxService_GetEntry_RepositoryError(t *testing.T) {
	repo := newMockOutboxRepoForService()
	repo.findErr = errors.New("connection reset")
	service := NewOutboxService(repo, zap.NewNop())

	_, err := service.GetEntry(context.Background(), uuid.New())
	require.Error(t, err)
	assert.False(t, shared.IsNotFound(err))
	assert.ErrorContains(t, err, "connection reset")
}

func TestOutboxService_RetryDeadEntry(t *testing.T) {
	logger := zap.NewNop()
	repo := newMockOutboxRepoForService()
	service := NewOutboxService(repo, logger)

	deadEntry := newDeadEntry()
	repo.entries[deadEntry.ID] = deadEntry

	result, err := service.RetryDeadEntry(context.Background(), deadEntry.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", result.Status)
	assert.Equal(t, 0, result.RetryCount)
	assert.Empty(t, result.LastError)
	// Replays keep the identity consumers deduplicate on
	assert.Equal(t, deadEntry.EventID, result.EventID)
	assert.Equal(t, "P20240501120000123456:PaymentPaid", result.CorrelationID)
}

func TestOutboxService_RetryDeadEntry_NotFound(t *testing.T) {
	logger := zap.NewNop()
	repo := newMockOutboxRepoForService()
	service := NewOutboxService(repo, logger)

	_, err := service.RetryDeadEntry(context.Background(), uuid.New())
	assert.True(t, shared.IsNotFound(err))
}

func TestOutboxService_RetryDeadEntry_NotDead(t *testing.T) {
	logger := zap.NewNop()
	repo := newMockOutboxRepoForService()
	service := NewOutboxService(repo, logger)

	entry := &shared.OutboxEntry{
		ID:     uuid.New(),
		Status: shared.OutboxStatusPending,
	}
	repo.entries[entry.ID] = entry

	_, err := service.RetryDeadEntry(context.Background(), entry.ID)
	assert.True(t, shared.IsStateConflict(err))
}

func TestOutboxService_GetStats(t *testing.T) {
	logger := zap.NewNop()
	repo := newMockOutboxRepoForService()
	service := NewOutboxService(repo, logger)

	statuses := []shared.OutboxStatus{
		shared.OutboxStatusPending,
		shared.OutboxStatusPending,
		shared.OutboxStatusProcessing,
		shared.OutboxStatusSent,
		shared.OutboxStatusSent,
		shared.OutboxStatusSent,
		shared.OutboxStatusFailed,
		shared.OutboxStatusDead,
	}

	for _, status := range statuses {
		entry := &shared.OutboxEntry{
			ID:     uuid.New(),
			Status: status,
		}
		repo.entries[entry.ID] = entry
	}

	stats, err := service.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.Processing)
	assert.Equal(t, int64(3), stats.Sent)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Dead)
	assert.Equal(t, int64(8), stats.Total)
}

func TestOutboxService_RetryAllDeadEntries(t *testing.T) {
	logger := zap.NewNop()
	repo := newMockOutboxRepoForService()
	service := NewOutboxService(repo, logger)

	// More than one page of dead entries
	for i := 0; i < 150; i++ {
		entry := newDeadEntry()
		repo.entries[entry.ID] = entry
	}

	pendingEntry := &shared.OutboxEntry{
		ID:     uuid.New(),
		Status: shared.OutboxStatusPending,
	}
	repo.entries[pendingEntry.ID] = pendingEntry

	count, err := service.RetryAllDeadEntries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(150), count)

	for _, entry := range repo.entries {
		assert.Equal(t, shared.OutboxStatusPending, entry.Status)
		assert.Equal(t, 0, entry.RetryCount)
	}
}

func TestOutboxService_RetryAllDeadEntries_FindError(t *testing.T) {
	repo := newMockOutboxRepoForService()
	repo.findErr = errors.New("timeout")
	service := NewOutboxService(repo, zap.NewNop())

	count, err := service.RetryAllDeadEntries(context.Background())
	assert.Error(t, err)
	assert.Zero(t, count)
}
