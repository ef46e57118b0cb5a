package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedis(t *testing.T) {
	client := startRedis(t)

	t.Run("locker is exclusive", func(t *testing.T) {
		locker := NewRedisLocker(client, "test:lock:")
		ctx := context.Background()

		lock, err := locker.Acquire(ctx, "payment:lock:P1", time.Second, 0)
		require.NoError(t, err)
		assert.Equal(t, "payment:lock:P1", lock.Key())

		_, err = locker.Acquire(ctx, "payment:lock:P1", time.Second, 0)
		assert.ErrorIs(t, err, shared.ErrLockNotAcquired)

		require.NoError(t, lock.Release(ctx))
		again, err := locker.Acquire(ctx, "payment:lock:P1", time.Second, 0)
		require.NoError(t, err)
		require.NoError(t, again.Release(ctx))
	})

	t.Run("expired lock cannot release its successor", func(t *testing.T) {
		locker := NewRedisLocker(client, "test:lock:")
		ctx := context.Background()

		stale, err := locker.Acquire(ctx, "payment:lock:P2", 100*time.Millisecond, 0)
		require.NoError(t, err)
		time.Sleep(200 * time.Millisecond)

		current, err := locker.Acquire(ctx, "payment:lock:P2", time.Second, 0)
		require.NoError(t, err)

		assert.ErrorIs(t, stale.Release(ctx), shared.ErrLockNotHeld)
		_, err = locker.Acquire(ctx, "payment:lock:P2", time.Second, 0)
		assert.ErrorIs(t, err, shared.ErrLockNotAcquired)
		require.NoError(t, current.Release(ctx))
	})

	t.Run("locker waits for release", func(t *testing.T) {
		locker := NewRedisLocker(client, "test:lock:")
		ctx := context.Background()

		held, err := locker.Acquire(ctx, "payment:lock:P3", time.Second, 0)
		require.NoError(t, err)
		go func() {
			time.Sleep(100 * time.Millisecond)
			_ = held.Release(context.Background())
		}()

		lock, err := locker.Acquire(ctx, "payment:lock:P3", time.Second, time.Second)
		require.NoError(t, err)
		require.NoError(t, lock.Release(ctx))
	})

	t.Run("idempotency store marks once", func(t *testing.T) {
		store := NewRedisIdempotencyStore(client, "test:idem:")
		ctx := context.Background()

		isNew, err := store.MarkProcessed(ctx, "P1:PaymentPaid", time.Minute)
		require.NoError(t, err)
		assert.True(t, isNew)

		isNew, err = store.MarkProcessed(ctx, "P1:PaymentPaid", time.Minute)
		require.NoError(t, err)
		assert.False(t, isNew)

		processed, err := store.IsProcessed(ctx, "P1:PaymentPaid")
		require.NoError(t, err)
		assert.True(t, processed)

		require.NoError(t, store.Unmark(ctx, "P1:PaymentPaid"))
		processed, err = store.IsProcessed(ctx, "P1:PaymentPaid")
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("counters keep their first expiry", func(t *testing.T) {
		store := NewRedisCounterStore(client, "test:risk:")
		ctx := context.Background()

		n, err := store.Incr(ctx, "attempt:u-1", time.Minute)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		n, err = store.Incr(ctx, "attempt:u-1", time.Hour)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		ttl, err := client.TTL(ctx, "test:risk:attempt:u-1").Result()
		require.NoError(t, err)
		assert.LessOrEqual(t, ttl, time.Minute)

		count, err := store.Count(ctx, "attempt:u-1")
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)
		count, err = store.Count(ctx, "attempt:none")
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("flags can be set and cleared", func(t *testing.T) {
		store := NewRedisCounterStore(client, "test:risk:")
		ctx := context.Background()

		require.NoError(t, store.SetFlag(ctx, "block:u-1", "fraud", time.Minute))
		reason, ok, err := store.Flag(ctx, "block:u-1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "fraud", reason)

		require.NoError(t, store.Delete(ctx, "block:u-1"))
		_, ok, err = store.Flag(ctx, "block:u-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("token issuer claims once", func(t *testing.T) {
		issuer := NewTokenIssuer(NewRedisIdempotencyStore(client, "test:token:"), "secret")
		ctx := context.Background()
		token := issuer.Issue("u-1", "O-1001|99.00|GATEWAY_A", time.Minute)

		require.NoError(t, issuer.Claim(ctx, token, time.Minute))
		assert.True(t, shared.IsDuplicateRequest(issuer.Claim(ctx, token, time.Minute)))

		require.NoError(t, issuer.Release(ctx, token))
		assert.NoError(t, issuer.Claim(ctx, token, time.Minute))
	})
}
