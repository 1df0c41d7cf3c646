package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient parses a redis:// or rediss:// URL and validates connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := PingRedis(ctx, rdb, 3*time.Second); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func PingRedis(parent context.Context, rdb redis.UniversalClient, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return rdb.Ping(ctx).Err()
}
