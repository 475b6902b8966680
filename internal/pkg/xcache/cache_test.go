package xcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryWithOptions[payload](time.Minute, time.Minute)

	_, err := cache.Get(ctx, "missing")
	require.Error(t, err)

	require.NoError(t, cache.Set(ctx, "key", payload{Name: "visits", Count: 3}))

	got, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, payload{Name: "visits", Count: 3}, got)

	require.NoError(t, cache.Delete(ctx, "key"))

	_, err = cache.Get(ctx, "key")
	require.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ctx := context.Background()
	cache := NewRedis[payload](client, WithExpiration(time.Minute))

	require.NoError(t, cache.Set(ctx, "key", payload{Name: "revenue", Count: 7}))

	got, err := cache.Get(ctx, "key")
	require.NoError(t, err)
	require.Equal(t, payload{Name: "revenue", Count: 7}, got)

	mr.FastForward(2 * time.Minute)

	_, err = cache.Get(ctx, "key")
	require.Error(t, err)
}

func TestNoopCache(t *testing.T) {
	ctx := context.Background()
	cache := NewNoop[payload]()

	require.NoError(t, cache.Set(ctx, "key", payload{Name: "ignored"}))

	_, err := cache.Get(ctx, "key")
	require.Error(t, err)
	require.Equal(t, "noop", cache.GetType())
}

func TestNewFromConfigDefaultsToNoop(t *testing.T) {
	cache := NewFromConfig[payload](Config{})
	require.Equal(t, "noop", cache.GetType())
}
