package xcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/looplj/memvault/internal/pkg/xredis"
)

func TestNewMemory(t *testing.T) {
	cache := NewMemoryWithOptions[string](5*time.Minute, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "tenant:1", "active"))

	value, err := cache.Get(ctx, "tenant:1")
	require.NoError(t, err)
	require.Equal(t, "active", value)

	require.NoError(t, cache.Delete(ctx, "tenant:1"))

	_, err = cache.Get(ctx, "tenant:1")
	require.Error(t, err)
}

func TestNewFromConfigMemoryMode(t *testing.T) {
	cache := NewFromConfig[int](Config{Mode: ModeMemory})
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "count", 3))

	value, err := cache.Get(ctx, "count")
	require.NoError(t, err)
	require.Equal(t, 3, value)
}

func TestNewFromConfigEmptyModeIsNoop(t *testing.T) {
	cache := NewFromConfig[string](Config{})
	require.Equal(t, "noop", cache.GetType())
}

func TestTwoLevel(t *testing.T) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rds := NewRedis[string](client, WithExpiration(time.Minute))
	mem := NewMemoryWithOptions[string](time.Minute, 5*time.Minute)

	cache := NewTwoLevel[string](mem, rds)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v"))

	value, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", value)

	// A fresh memory tier still finds the value in redis.
	cold := NewTwoLevel[string](NewMemoryWithOptions[string](time.Minute, 5*time.Minute), rds)

	value, err = cold.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", value)
}

func TestNewFromConfigRedisMode(t *testing.T) {
	mr := miniredis.RunT(t)

	cache := NewFromConfig[string](Config{
		Mode:  ModeRedis,
		Redis: xredis.Config{Addr: mr.Addr()},
	})
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v"))

	value, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", value)
}
