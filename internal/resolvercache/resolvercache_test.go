package resolvercache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParentOfCIDRForm(t *testing.T) {
	assert.Equal(t, "Default", ParentOf("Default/10.0.0.0/8"))
}

func TestParentOfPlainPath(t *testing.T) {
	assert.Equal(t, "Default/IPv4", ParentOf("Default/IPv4/10.0.0.0"))
}

func TestParentOfNoSlash(t *testing.T) {
	assert.Equal(t, "", ParentOf("Default"))
}

func TestInProcessInvalidateRemovesEntryAndParent(t *testing.T) {
	c := NewInProcess()
	ctx := context.Background()
	c.Set(ctx, "Default/10.0.0.0/8", map[string]any{"id": 1}, time.Minute)
	c.Set(ctx, "Default", map[string]any{"id": 2}, time.Minute)

	c.Invalidate(ctx, "Default/10.0.0.0/8", "ip4_block")

	_, ok := c.Get(ctx, "Default/10.0.0.0/8")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "Default")
	assert.False(t, ok)
}

func TestRedisMirroredInvalidatesBothLayers(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisMirrored(client, nil)
	ctx := context.Background()

	cache.Set(ctx, "Default/10.0.0.0/8", map[string]any{"id": 1}, time.Minute)
	require.NoError(t, client.Set(ctx, redisKey("Default/10.0.0.0/8"), "1", time.Minute).Err())

	cache.Invalidate(ctx, "Default/10.0.0.0/8", "ip4_block")

	_, ok := cache.Get(ctx, "Default/10.0.0.0/8")
	assert.False(t, ok)
	exists, err := client.Exists(ctx, redisKey("Default/10.0.0.0/8")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)
}

func TestRedisMirroredFallsBackOnOutage(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisMirrored(client, nil)
	mr.Close() // simulate outage before invalidation

	ctx := context.Background()
	cache.Set(ctx, "Default/10.0.0.0/8", map[string]any{"id": 1}, time.Minute)
	assert.NotPanics(t, func() {
		cache.Invalidate(ctx, "Default/10.0.0.0/8", "ip4_block")
	})
	_, ok := cache.Get(ctx, "Default/10.0.0.0/8")
	assert.False(t, ok)
}
