package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Versioned {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewVersioned(client, "ledger", time.Minute)
}

type payload struct {
	Count int `json:"count"`
}

func TestFetchJSONCachesLoaderResult(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	key, err := c.Key(ctx, "rows", "activos")
	require.NoError(t, err)
	assert.Equal(t, "ledger:rows:activos:v1", key)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return payload{Count: 3}, nil
	}

	var first payload
	require.NoError(t, c.FetchJSON(ctx, key, &first, loader))
	var second payload
	require.NoError(t, c.FetchJSON(ctx, key, &second, loader))

	assert.Equal(t, 3, first.Count)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestBumpChangesKeys(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	before, err := c.Key(ctx, "rows")
	require.NoError(t, err)
	require.NoError(t, c.Bump(ctx))
	after, err := c.Key(ctx, "rows")
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
	assert.Equal(t, "ledger:rows:v2", after)
}

func TestFetchJSONPropagatesLoaderError(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	boom := errors.New("boom")

	var out payload
	err := c.FetchJSON(ctx, "ledger:k", &out, func(context.Context) (any, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
}

func TestNilClientCallsLoader(t *testing.T) {
	ctx := context.Background()
	c := NewVersioned(nil, "ledger", time.Minute)

	key, err := c.Key(ctx, "rows")
	require.NoError(t, err)
	assert.Equal(t, "ledger:rows", key)

	var out payload
	require.NoError(t, c.FetchJSON(ctx, key, &out, func(context.Context) (any, error) { return payload{Count: 1}, nil }))
	assert.Equal(t, 1, out.Count)
	assert.NoError(t, c.Bump(ctx))
}

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	addr := mr.Addr()
	mr.Close()
	_, err = New(context.Background(), addr)
	assert.ErrorContains(t, err, "platform/cache: ping")
}
