package balances

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestFetchJSONPopulatesAndServesFromCache(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(ctx context.Context) (interface{}, error) {
		calls++
		return map[string]float64{"balance": 42.5}, nil
	}

	key, err := cache.BuildKey(ctx, "ledger", "tb", "2025-03-01")
	require.NoError(t, err)

	var first map[string]float64
	require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
	require.InDelta(t, 42.5, first["balance"], 0.001)
	require.Equal(t, 1, calls)

	var second map[string]float64
	require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))
	require.InDelta(t, 42.5, second["balance"], 0.001)
	require.Equal(t, 1, calls)
}

func TestBumpInvalidatesVersionedKeys(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "ledger", "tb", "2025-03-01")
	require.NoError(t, err)

	require.NoError(t, cache.Bump(ctx))

	after, err := cache.BuildKey(ctx, "ledger", "tb", "2025-03-01")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestNilCacheIsPassThrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	require.NoError(t, cache.Bump(ctx))

	key, err := cache.BuildKey(ctx, "ledger", "tb", "2025-03-01")
	require.NoError(t, err)

	calls := 0
	var out map[string]float64
	loader := func(ctx context.Context) (interface{}, error) {
		calls++
		return map[string]float64{"balance": 1}, nil
	}
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, 2, calls)
}
