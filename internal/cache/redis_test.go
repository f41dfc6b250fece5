package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/calculus-api/internal/config"
)

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	c := NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCacheGetSet(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	val, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, "", val)

	require.NoError(t, c.Set(ctx, "leaderboard:1:30", `{"total_count":3}`, time.Minute))
	val, err = c.Get(ctx, "leaderboard:1:30")
	require.NoError(t, err)
	assert.Equal(t, `{"total_count":3}`, val)
}

func TestRedisCacheExpiration(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 30*time.Second))
	mr.FastForward(31 * time.Second)

	val, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "", val)
}

func TestRedisCacheDel(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "b", "2", 0))
	require.NoError(t, c.Del(ctx, "a", "b"))
	require.NoError(t, c.Del(ctx))

	assert.False(t, mr.Exists("a"))
	assert.False(t, mr.Exists("b"))
}

func TestRedisCacheErrors(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))
	mr.Close()

	_, err := c.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, c.Health(ctx))
}

func TestNewRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr), PoolSize: 2}
	c, err := NewRedisCache(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "x", "y", 0))
	got, err := mr.Get("x")
	require.NoError(t, err)
	assert.Equal(t, "y", got)
}

func mustPort(t *testing.T, mr *miniredis.Miniredis) int {
	t.Helper()
	var port int
	_, err := fmt.Sscanf(mr.Port(), "%d", &port)
	require.NoError(t, err)
	return port
}
