package consumers

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduplicator remembers which intake events were already applied.
type Deduplicator interface {
	// Claim returns false when id was claimed before.
	Claim(ctx context.Context, id string) (bool, error)
	// Release forgets id so a redelivery is applied again.
	Release(ctx context.Context, id string) error
}

const dedupKeyPrefix = "intake:dedup:"

// RedisDeduplicator claims event ids with SETNX and a TTL.
type RedisDeduplicator struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisDeduplicator creates a deduplicator keeping claims for ttl
func NewRedisDeduplicator(client redis.UniversalClient, ttl time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, ttl: ttl}
}

// Claim implements Deduplicator
func (d *RedisDeduplicator) Claim(ctx context.Context, id string) (bool, error) {
	return d.client.SetNX(ctx, dedupKeyPrefix+id, time.Now().UTC().Format(time.RFC3339), d.ttl).Result()
}

// Release implements Deduplicator
func (d *RedisDeduplicator) Release(ctx context.Context, id string) error {
	return d.client.Del(ctx, dedupKeyPrefix+id).Err()
}
