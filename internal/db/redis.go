// Package db holds the storage collaborators of the campaign engine: view
// counters, user attributes and the payload cache slot.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore wraps a redis client and context for operations.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

func (r *RedisStore) valid() bool {
	return r != nil && r.Client != nil
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r.valid() {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}

// DefaultPayloadKey is the Redis key of the payload cache slot.
const DefaultPayloadKey = "campaigns:payload"

// RedisPayloadCache keeps the last persisted campaign payload in one key.
type RedisPayloadCache struct {
	store *RedisStore
	key   string
}

// NewRedisPayloadCache returns a cache slot stored under DefaultPayloadKey.
func NewRedisPayloadCache(store *RedisStore) *RedisPayloadCache {
	return &RedisPayloadCache{store: store, key: DefaultPayloadKey}
}

// Load returns the cached payload or ErrCacheMiss.
func (c *RedisPayloadCache) Load(ctx context.Context) ([]byte, error) {
	if !c.store.valid() {
		return nil, ErrNilRedisStore
	}
	raw, err := c.store.Client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("load payload: %w", err)
	}
	return raw, nil
}

// Store replaces the cached payload.
func (c *RedisPayloadCache) Store(ctx context.Context, raw []byte) error {
	if !c.store.valid() {
		return ErrNilRedisStore
	}
	if err := c.store.Client.Set(ctx, c.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("store payload: %w", err)
	}
	return nil
}

// Delete empties the slot.
func (c *RedisPayloadCache) Delete(ctx context.Context) error {
	if !c.store.valid() {
		return ErrNilRedisStore
	}
	return c.store.Client.Del(ctx, c.key).Err()
}
