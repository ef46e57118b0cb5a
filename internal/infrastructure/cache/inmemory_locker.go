package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// InMemoryLocker implements shared.Locker for a single process
type InMemoryLocker struct {
	mu    sync.Mutex
	locks map[string]heldLock
}

type heldLock struct {
	token     string
	expiresAt time.Time
}

// NewInMemoryLocker creates an empty locker
func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{locks: make(map[string]heldLock)}
}

// Acquire takes key for ttl, polling until wait elapses
func (l *InMemoryLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (shared.Lock, error) {
	if ttl <= 0 {
		ttl = defaultLockTimeout
	}
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		if l.tryAcquire(key, token, ttl) {
			return &memoryLock{locker: l, key: key, token: token}, nil
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

func (l *InMemoryLocker) tryAcquire(key, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if h, ok := l.locks[key]; ok && now.Before(h.expiresAt) {
		return false
	}
	l.locks[key] = heldLock{token: token, expiresAt: now.Add(ttl)}
	return true
}

func (l *InMemoryLocker) release(key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.locks[key]
	if !ok || h.token != token || time.Now().After(h.expiresAt) {
		return shared.ErrLockNotHeld
	}
	delete(l.locks, key)
	return nil
}

type memoryLock struct {
	locker *InMemoryLocker
	key    string
	token  string
}

func (l *memoryLock) Key() string { return l.key }

func (l *memoryLock) Release(_ context.Context) error {
	return l.locker.release(l.key, l.token)
}

var _ shared.Locker = (*InMemoryLocker)(nil)
