package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

func TestInMemoryLocker_Exclusive(t *testing.T) {
	locker := NewInMemoryLocker()
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "payment:lock:P1", time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, "payment:lock:P1", lock.Key())

	_, err = locker.Acquire(ctx, "payment:lock:P1", time.Second, 0)
	assert.ErrorIs(t, err, shared.ErrLockNotAcquired)

	// other keys are independent
	other, err := locker.Acquire(ctx, "payment:lock:P2", time.Second, 0)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lock.Release(ctx))
	again, err := locker.Acquire(ctx, "payment:lock:P1", time.Second, 0)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestInMemoryLocker_WaitsForRelease(t *testing.T) {
	locker := NewInMemoryLocker()
	ctx := context.Background()

	lock, err := locker.Acquire(ctx, "k", time.Second, 0)
	require.NoError(t, err)

	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = lock.Release(ctx)
	}()

	second, err := locker.Acquire(ctx, "k", time.Second, time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestInMemoryLocker_ExpiredLockIsTakenOver(t *testing.T) {
	locker := NewInMemoryLocker()
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "k", 20*time.Millisecond, 0)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)

	fresh, err := locker.Acquire(ctx, "k", time.Second, 0)
	require.NoError(t, err)

	// the stale holder must not free the new owner's lock
	assert.ErrorIs(t, stale.Release(ctx), shared.ErrLockNotHeld)
	require.NoError(t, fresh.Release(ctx))
}

func TestInMemoryLocker_ContextCancelled(t *testing.T) {
	locker := NewInMemoryLocker()
	lock, err := locker.Acquire(context.Background(), "k", time.Second, 0)
	require.NoError(t, err)
	defer lock.Release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, "k", time.Second, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryLocker_Concurrent(t *testing.T) {
	locker := NewInMemoryLocker()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := locker.Acquire(ctx, "hot", time.Minute, 0); err == nil {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, acquired)
}
