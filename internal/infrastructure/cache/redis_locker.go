package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

const (
	defaultLockPrefix  = "paycore:lock:"
	lockRetryInterval  = 50 * time.Millisecond
	defaultLockTimeout = 10 * time.Second
)

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements shared.Locker with SET NX PX and a
// compare-and-delete release
type RedisLocker struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisLocker creates a locker on an existing Redis client
func NewRedisLocker(client redis.UniversalClient, keyPrefix string) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = defaultLockPrefix
	}
	return &RedisLocker{client: client, keyPrefix: keyPrefix}
}

// Acquire takes key for ttl, polling every 50ms until wait elapses
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (shared.Lock, error) {
	if ttl <= 0 {
		ttl = defaultLockTimeout
	}
	fullKey := l.keyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return &redisLock{client: l.client, key: key, fullKey: fullKey, token: token}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, shared.ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

type redisLock struct {
	client  redis.UniversalClient
	key     string
	fullKey string
	token   string
}

func (l *redisLock) Key() string { return l.key }

func (l *redisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.fullKey}, l.token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return shared.ErrLockNotHeld
	}
	return nil
}

var _ shared.Locker = (*RedisLocker)(nil)
