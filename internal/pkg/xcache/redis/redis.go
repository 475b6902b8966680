package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lib_store "github.com/eko/gocache/lib/v4/store"
	redis "github.com/redis/go-redis/v9"
)

// RedisType represents the storage type as a string value.
const RedisType = "redis"

// RedisStore is a typed gocache store backed by go-redis. Values are stored
// as JSON strings so the same entry can be read back into the declared type.
type RedisStore[T any] struct {
	client  redis.UniversalClient
	options *lib_store.Options
}

// NewRedisStore creates a new generic store.
func NewRedisStore[T any](client redis.UniversalClient, options ...lib_store.Option) *RedisStore[T] {
	return &RedisStore[T]{
		client:  client,
		options: lib_store.ApplyOptions(options...),
	}
}

// Get returns typed data stored for a given key.
func (s *RedisStore[T]) Get(ctx context.Context, key any) (any, error) {
	var result T

	keyString, ok := key.(string)
	if !ok {
		return result, lib_store.NotFoundWithCause(fmt.Errorf("expected string key, got %T", key))
	}

	object, err := s.client.Get(ctx, keyString).Result()
	if errors.Is(err, redis.Nil) {
		return result, lib_store.NotFoundWithCause(err)
	}

	if err != nil {
		return result, err
	}

	if err := json.Unmarshal([]byte(object), &result); err != nil {
		var zero T
		return zero, err
	}

	return result, nil
}

// GetWithTTL returns typed data stored for a given key and its remaining TTL.
func (s *RedisStore[T]) GetWithTTL(ctx context.Context, key any) (any, time.Duration, error) {
	var result T

	keyString, ok := key.(string)
	if !ok {
		return result, 0, lib_store.NotFoundWithCause(fmt.Errorf("expected string key, got %T", key))
	}

	object, err := s.client.Get(ctx, keyString).Result()
	if errors.Is(err, redis.Nil) {
		return result, 0, lib_store.NotFoundWithCause(err)
	}

	if err != nil {
		return result, 0, err
	}

	if err := json.Unmarshal([]byte(object), &result); err != nil {
		var zero T
		return zero, 0, err
	}

	ttl, err := s.client.TTL(ctx, keyString).Result()
	if err != nil {
		var zero T
		return zero, 0, err
	}

	return result, ttl, nil
}

// Set stores the value as JSON for the given key.
func (s *RedisStore[T]) Set(ctx context.Context, key any, value any, options ...lib_store.Option) error {
	opts := lib_store.ApplyOptionsWithDefault(s.options, options...)

	keyString, ok := key.(string)
	if !ok {
		return fmt.Errorf("expected string key, got %T", key)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, keyString, string(raw), opts.Expiration).Err()
}

// Delete removes the given key.
func (s *RedisStore[T]) Delete(ctx context.Context, key any) error {
	keyString, ok := key.(string)
	if !ok {
		return fmt.Errorf("expected string key, got %T", key)
	}

	return s.client.Del(ctx, keyString).Err()
}

// GetType returns the store type.
func (s *RedisStore[T]) GetType() string {
	return RedisType
}

// Clear resets all data in the store.
func (s *RedisStore[T]) Clear(ctx context.Context) error {
	return s.client.FlushAll(ctx).Err()
}

// Invalidate invalidates cache data for the given options.
func (s *RedisStore[T]) Invalidate(ctx context.Context, options ...lib_store.InvalidateOption) error {
	return s.client.FlushAll(ctx).Err()
}
