package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

const defaultCounterPrefix = "paycore:risk:"

// RedisCounterStore implements shared.CounterStore on Redis strings
type RedisCounterStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisCounterStore creates a counter store on an existing Redis client
func NewRedisCounterStore(client redis.UniversalClient, keyPrefix string) *RedisCounterStore {
	if keyPrefix == "" {
		keyPrefix = defaultCounterPrefix
	}
	return &RedisCounterStore{client: client, keyPrefix: keyPrefix}
}

// Incr runs INCR and EXPIRE NX in one round trip, so only the first
// increment of a window sets its expiry.
func (s *RedisCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, s.keyPrefix+key)
		pipe.ExpireNX(ctx, s.keyPrefix+key, ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	return incr.Val(), nil
}

// Count returns the counter value, 0 when absent
func (s *RedisCounterStore) Count(ctx context.Context, key string) (int64, error) {
	raw, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s holds %q: %w", key, raw, err)
	}
	return n, nil
}

// SetFlag stores value under key for ttl
func (s *RedisCounterStore) SetFlag(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set flag %s: %w", key, err)
	}
	return nil
}

// Flag returns the value under key and whether it exists
func (s *RedisCounterStore) Flag(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read flag %s: %w", key, err)
	}
	return value, true, nil
}

// Delete removes key
func (s *RedisCounterStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

type counterEntry struct {
	count     int64
	value     string
	expiresAt time.Time
}

// InMemoryCounterStore implements shared.CounterStore in process. Counters
// are not shared across instances.
type InMemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]counterEntry
	now     func() time.Time
}

// NewInMemoryCounterStore creates an empty store. now defaults to time.Now.
func NewInMemoryCounterStore(now func() time.Time) *InMemoryCounterStore {
	if now == nil {
		now = time.Now
	}
	return &InMemoryCounterStore{entries: make(map[string]counterEntry), now: now}
}

func (s *InMemoryCounterStore) live(key string) (counterEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return counterEntry{}, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return counterEntry{}, false
	}
	return e, true
}

// Incr adds one to key, starting a new window when it is absent
func (s *InMemoryCounterStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		e = counterEntry{expiresAt: s.now().Add(ttl)}
	}
	e.count++
	s.entries[key] = e
	return e.count, nil
}

// Count returns the counter value, 0 when absent or expired
func (s *InMemoryCounterStore) Count(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, _ := s.live(key)
	return e.count, nil
}

// SetFlag stores value under key for ttl
func (s *InMemoryCounterStore) SetFlag(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = counterEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

// Flag returns the value under key and whether it exists
func (s *InMemoryCounterStore) Flag(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	return e.value, ok, nil
}

// Delete removes key
func (s *InMemoryCounterStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

var (
	_ shared.CounterStore = (*RedisCounterStore)(nil)
	_ shared.CounterStore = (*InMemoryCounterStore)(nil)
)
