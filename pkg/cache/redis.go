// Package cache holds the Redis client shared by the services.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedis parses redisURL and checks the server answers.
func NewRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	return rdb, nil
}

// Health reports the Redis connection status
func Health(ctx context.Context, rdb redis.UniversalClient) map[string]string {
	if rdb == nil {
		return map[string]string{"status": "disabled"}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return map[string]string{
			"status": "down",
			"error":  err.Error(),
		}
	}
	return map[string]string{"status": "up"}
}
