package authapi

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("CALCSYNC_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CALCSYNC_TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestRedisCounter_Integration(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	c := NewRedisCounter(rdb, "calcsync:test:login:"+uuid.NewString()+":")

	count, ttl, err := c.Peek(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, ttl)

	n, err := c.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = c.Incr(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, ttl, err = c.Peek(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.LessOrEqual(t, ttl, time.Minute)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, c.Hold(ctx, "k", 10*time.Minute))
	_, ttl, err = c.Peek(ctx, "k")
	require.NoError(t, err)
	assert.Greater(t, ttl, 9*time.Minute)

	require.NoError(t, c.Reset(ctx, "k"))
	count, _, err = c.Peek(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, count)
}
