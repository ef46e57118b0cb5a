package event

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
	"github.com/Kylin-001/HKYG-sub002/internal/infrastructure/persistence/models"
)

func newTestEntry(t *testing.T) *shared.OutboxEntry {
	t.Helper()
	ev := newTestEvent("TestEvent")
	return shared.NewOutboxEntry(ev, ev.RoutingKey(), []byte(`{"data":"x"}`), 3)
}

func TestGormOutboxRepository_SaveAndFindPending(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewGormOutboxRepository(db)
	ctx := context.Background()

	first := newTestEntry(t)
	first.CreatedAt = time.Now().Add(-time.Minute)
	second := newTestEntry(t)
	require.NoError(t, repo.Save(ctx, second, first))

	pending, err := repo.FindPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID, "oldest first")
	assert.Equal(t, second.ID, pending[1].ID)
	assert.Equal(t, first.CorrelationID, pending[0].CorrelationID)
	assert.Equal(t, []byte(`{"data":"x"}`), pending[0].Payload)

	limited, err := repo.FindPending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGormOutboxRepository_SaveEmpty(t *testing.T) {
	db, mock := setupMockDB(t)

	require.NoError(t, NewGormOutboxRepository(db).Save(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_MarkProcessingClaimsOnce(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewGormOutboxRepository(db)
	ctx := context.Background()

	entry := newTestEntry(t)
	require.NoError(t, repo.Save(ctx, entry))

	claimed, err := repo.MarkProcessing(ctx, []uuid.UUID{entry.ID})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, shared.OutboxStatusProcessing, claimed[0].Status)

	again, err := repo.MarkProcessing(ctx, []uuid.UUID{entry.ID})
	require.NoError(t, err)
	assert.Empty(t, again)

	none, err := repo.MarkProcessing(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestGormOutboxRepository_MarkProcessingSkipsLockedOnPostgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGormOutboxRepository(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE SKIP LOCKED`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))
	mock.ExpectCommit()

	claimed, err := repo.MarkProcessing(context.Background(), []uuid.UUID{id})

	require.NoError(t, err)
	assert.Empty(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOutboxRepository_ReclaimStale(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewGormOutboxRepository(db)
	ctx := context.Background()

	abandoned := newTestEntry(t)
	lastChance := newTestEntry(t)
	lastChance.MaxRetries = 1
	fresh := newTestEntry(t)
	require.NoError(t, repo.Save(ctx, abandoned, lastChance, fresh))

	claimed, err := repo.MarkProcessing(ctx, []uuid.UUID{abandoned.ID, lastChance.ID, fresh.ID})
	require.NoError(t, err)
	require.Len(t, claimed, 3)
	for _, e := range claimed {
		require.NotNil(t, e.ClaimedAt)
	}

	// the relay that claimed these two died ten minutes ago
	longAgo := time.Now().Add(-10 * time.Minute)
	require.NoError(t, db.Model(&models.OutboxEntryModel{}).
		Where("id IN ?", []uuid.UUID{abandoned.ID, lastChance.ID}).
		Update("claimed_at", longAgo).Error)

	reclaimed, err := repo.ReclaimStale(ctx, time.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, reclaimed)

	got, err := repo.FindByID(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "claim lease expired", got.LastError)
	assert.Nil(t, got.ClaimedAt)

	retryable, err := repo.FindRetryable(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, abandoned.ID, retryable[0].ID)

	dead, err := repo.FindByID(ctx, lastChance.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusDead, dead.Status)

	stillClaimed, err := repo.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusProcessing, stillClaimed.Status)

	// reclaimed entries can be claimed again
	again, err := repo.MarkProcessing(ctx, []uuid.UUID{abandoned.ID})
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestGormOutboxRepository_FindRetryable(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewGormOutboxRepository(db)
	ctx := context.Background()

	due := newTestEntry(t)
	due.MarkFailed("boom", shared.RetryPolicy{BaseBackoff: time.Millisecond})
	past := time.Now().Add(-time.Second)
	due.NextRetryAt = &past

	later := newTestEntry(t)
	later.MarkFailed("boom", shared.RetryPolicy{BaseBackoff: time.Hour})

	require.NoError(t, repo.Save(ctx, due, later))

	retryable, err := repo.FindRetryable(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, retryable, 1)
	assert.Equal(t, due.ID, retryable[0].ID)
	assert.Equal(t, 1, retryable[0].RetryCount)
	assert.Equal(t, "boom", retryable[0].LastError)
}

func TestGormOutboxRepository_UpdateAndFindByID(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewGormOutboxRepository(db)
	ctx := context.Background()

	entry := newTestEntry(t)
	require.NoError(t, repo.Save(ctx, entry))

	entry.MarkSent()
	require.NoError(t, repo.Update(ctx, entry))

	got, err := repo.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, shared.OutboxStatusSent, got.Status)
	assert.NotNil(t, got.ProcessedAt)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.True(t, shared.IsNotFound(err))
}

func TestGormOutboxRepository_FindDeadPaginates(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewGormOutboxRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := newTestEntry(t)
		e.RetryCount = e.MaxRetries - 1
		e.MarkFailed("gone", shared.DefaultRetryPolicy())
		require.True(t, e.IsDead())
		require.NoError(t, repo.Save(ctx, e))
	}
	require.NoError(t, repo.Save(ctx, newTestEntry(t)))

	page1, total, err := repo.FindDead(ctx, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, page1, 2)

	page2, _, err := repo.FindDead(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page2, 1)
}

func TestGormOutboxRepository_DeleteOlderThanKeepsUnsent(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewGormOutboxRepository(db)
	ctx := context.Background()

	sent := newTestEntry(t)
	sent.MarkSent()
	old := time.Now().Add(-48 * time.Hour)
	sent.ProcessedAt = &old
	pending := newTestEntry(t)
	require.NoError(t, repo.Save(ctx, sent, pending))

	deleted, err := repo.DeleteOlderThan(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[shared.OutboxStatusPending])
	assert.EqualValues(t, 0, counts[shared.OutboxStatusSent])
}
