package consumers

import (
	"context"
	"testing"
	"time"

	"github.com/atelier/production-backend/pkg/cache"
	"github.com/atelier/production-backend/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisDeduplicator(t *testing.T) {
	testutil.SkipIfShort(t)
	if !testutil.DockerAvailable() {
		t.Skip("docker not available")
	}

	ctx := context.Background()
	container, err := testutil.NewRedisContainer(ctx)
	require.NoError(t, err)
	defer container.Terminate(ctx)

	rdb, err := cache.NewRedis(ctx, container.URL)
	require.NoError(t, err)
	defer rdb.Close()

	dedup := NewRedisDeduplicator(rdb, time.Minute)

	fresh, err := dedup.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = dedup.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, fresh)

	ttl, err := rdb.TTL(ctx, dedupKeyPrefix+"evt-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, dedup.Release(ctx, "evt-1"))
	fresh, err = dedup.Claim(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, fresh)

	assert.Equal(t, "up", cache.Health(ctx, rdb)["status"])
}
