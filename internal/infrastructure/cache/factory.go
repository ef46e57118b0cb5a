package cache

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kylin-001/HKYG-sub002/internal/domain/shared"
)

// Factory builds the lock and idempotency backends. With Redis reachable
// both are Redis-backed; otherwise, if allowed, both fall back to in-memory.
type Factory struct {
	redisConfig           RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether in-memory backends replace Redis when
// it is unavailable. Default is false.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(cfg RedisConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig: cfg,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Backends is what the factory produces. Client is nil with in-memory backends.
type Backends struct {
	Client      *redis.Client
	Locker      shared.Locker
	Idempotency shared.IdempotencyStore
	Counters    shared.CounterStore
}

// Close releases the idempotency store and the Redis client
func (b *Backends) Close() error {
	if err := b.Idempotency.Close(); err != nil {
		return err
	}
	if b.Client != nil {
		return b.Client.Close()
	}
	return nil
}

// Create connects to Redis, falling back to in-memory backends when allowed
func (f *Factory) Create() (*Backends, error) {
	client, err := NewRedisClient(f.redisConfig)
	if err == nil {
		f.logger.Info("using Redis lock and idempotency store",
			zap.String("host", f.redisConfig.Host),
			zap.Int("port", f.redisConfig.Port),
		)
		return &Backends{
			Client:      client,
			Locker:      NewRedisLocker(client, ""),
			Idempotency: NewRedisIdempotencyStore(client, ""),
			Counters:    NewRedisCounterStore(client, ""),
		}, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for locks and idempotency but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory locks, idempotency store and risk counters. "+
		"None of them are shared across instances in this mode.",
		zap.Error(err),
	)
	return &Backends{
		Locker:      NewInMemoryLocker(),
		Idempotency: NewInMemoryIdempotencyStore(),
		Counters:    NewInMemoryCounterStore(nil),
	}, nil
}
