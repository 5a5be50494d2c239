package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestRedisCache_RoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisCache(client, "agribeta:test:")
	ctx := context.Background()

	var got item
	require.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", item{Name: "maize", N: 3}, time.Minute))
	require.True(t, mr.Exists("agribeta:test:k"))
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, item{Name: "maize", N: 3}, got)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k2", item{}, time.Minute))
	require.NoError(t, c.Delete(ctx, "k2"))
	assert.False(t, mr.Exists("agribeta:test:k2"))
}

func TestRedisCache_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	var got item
	err := NewRedisCache(client, "").Get(context.Background(), "k", &got)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCacheMiss))
}

func TestLRUCache_TTL(t *testing.T) {
	c, err := NewLRUCache(8)
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", item{Name: "bean"}, time.Minute))
	var got item
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "bean", got.Name)

	now = now.Add(61 * time.Second)
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestLRUCache_Evicts(t *testing.T) {
	c, err := NewLRUCache(2)
	require.NoError(t, err)
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, item{Name: k}, time.Hour))
	}
	var got item
	assert.ErrorIs(t, c.Get(ctx, "a", &got), ErrCacheMiss)
	assert.NoError(t, c.Get(ctx, "c", &got))
}
