package fraud

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/internal/pkg/env"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	var lastErr error
	for _, host := range []string{env.GetEnv("CACHE_HOST", "localhost"), "cache", "127.0.0.1"} {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", host, env.GetEnv("CACHE_PORT", "6379")),
			Password: env.GetEnv("CACHE_PASSWORD", ""),
			DB:       13,
		})
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, err := client.Ping(ctx).Result()
		cancel()
		if err == nil {
			t.Cleanup(func() { _ = client.Close() })
			return client
		}
		lastErr = err
		_ = client.Close()
	}
	t.Skipf("Skipping Redis-dependent test: no reachable Redis endpoint (%v)", lastErr)
	return nil
}

func TestRedisWindowStoreMatchesMemory(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	prefix := fmt.Sprintf("pixelmart:test:%d", time.Now().UnixNano())
	t.Cleanup(func() {
		iter := client.Scan(ctx, 0, prefix+":*", 0).Iterator()
		for iter.Next(ctx) {
			_ = client.Del(ctx, iter.Val()).Err()
		}
	})

	d := NewDetector(NewRedisWindowStore(client, prefix), nil)

	v, err := d.Evaluate(ctx, models.EventKindClick, 1, "9.9.9.9", t0)
	require.NoError(t, err)
	assert.False(t, v.Blocked())

	v, err = d.Evaluate(ctx, models.EventKindClick, 1, "9.9.9.9", t0.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, v.IsDuplicate)

	ttl, err := client.PTTL(ctx, prefix+":"+sourceKey(models.EventKindClick, 1, "9.9.9.9")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	n, err := d.Cleanup(ctx, t0)
	require.NoError(t, err)
	assert.Zero(t, n)
}
