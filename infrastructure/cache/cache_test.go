package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-consensus/internal/ports"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte("catalog")
	require.NoError(t, c.Set(ctx, "short", value, time.Minute))
	require.NoError(t, c.Set(ctx, "forever", []byte("x"), 0))
	value[0] = 'C'

	got, ok, err := c.Get(ctx, "short")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("catalog"), got, "stored value must not alias the caller's slice")

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "short")
	assert.False(t, ok, "entry expires at its deadline")

	_, ok, _ = c.Get(ctx, "forever")
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "forever"))
	_, ok, _ = c.Get(ctx, "forever")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Clear(ctx))
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestRedisCache_Prefix(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, "consensus:catalog", NewRedisCache(client, "").key("catalog"))
	assert.Equal(t, "test:catalog", NewRedisCache(client, "test:").key("catalog"))
}

func TestRedisCache_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisCache(client, "")

	_, ok, err := c.Get(context.Background(), "catalog")

	require.Error(t, err)
	assert.False(t, ok)
	var cacheErr *ports.CacheError
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "get", cacheErr.Operation)
	assert.Equal(t, "catalog", cacheErr.Key)

	err = c.Set(context.Background(), "catalog", []byte("x"), time.Minute)
	assert.ErrorAs(t, err, &cacheErr)
}

// newLiveRedisCache connects to the server named by CONSENSUS_TEST_REDIS_ADDR
// and skips the test when it is unset.
func newLiveRedisCache(t *testing.T) (*RedisCache, *redis.Client) {
	t.Helper()
	addr := os.Getenv("CONSENSUS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONSENSUS_TEST_REDIS_ADDR not set")
	}

	client, err := DialRedis(context.Background(), addr)
	require.NoError(t, err)
	c := NewRedisCache(client, "consensus-test:"+t.Name()+":")
	t.Cleanup(func() {
		_ = c.Clear(context.Background())
		_ = client.Close()
	})
	return c, client
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c, client := newLiveRedisCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err, "a miss is not an error")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "catalog", []byte(`[{"id":"openai/gpt-4o"}]`), time.Minute))
	got, ok, err := c.Get(ctx, "catalog")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":"openai/gpt-4o"}]`, string(got))

	ttl, err := client.TTL(ctx, c.key("catalog")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	require.NoError(t, c.Set(ctx, "forever", []byte("x"), 0))
	ttl, err = client.TTL(ctx, c.key("forever")).Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl, "zero expiration keeps the key")

	require.NoError(t, c.Delete(ctx, "catalog"))
	_, ok, err = c.Get(ctx, "catalog")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Clear(ctx))
	_, ok, err = c.Get(ctx, "forever")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Expiry(t *testing.T) {
	c, _ := newLiveRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("x"), 50*time.Millisecond))

	assert.Eventually(t, func() bool {
		_, ok, err := c.Get(ctx, "short")
		return err == nil && !ok
	}, 2*time.Second, 20*time.Millisecond)
}
