package redisx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ferremas/orders/internal/orders"
	"github.com/ferremas/orders/internal/testutil"
)

func TestKeys(t *testing.T) {
	require.Equal(t, "order_status:42", OrderStatusKey(42))
	require.Equal(t, "dedup:stockwatch-svc:abc", DedupKey("stockwatch-svc", "abc"))
	require.Equal(t, "stock_low:7:3", LowStockKey(7, 3))
}

func TestStatusCacheRoundTrip(t *testing.T) {
	rdb := testutil.Redis(t)
	ctx := context.Background()
	c := NewStatusCache(rdb)

	_, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, 1, orders.StatusPreparing))
	s, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, orders.StatusPreparing, s)

	ttl, err := rdb.TTL(ctx, OrderStatusKey(1)).Result()
	require.NoError(t, err)
	require.Positive(t, ttl)
}

func TestDedupClaimOnce(t *testing.T) {
	rdb := testutil.Redis(t)
	ctx := context.Background()
	d := NewDedup(rdb, "stockwatch-svc")

	first, err := d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, first)

	again, err := d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	require.False(t, again)

	require.NoError(t, d.Release(ctx, "evt-1"))
	after, err := d.Claim(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, after)
}

func TestAlertOnce(t *testing.T) {
	rdb := testutil.Redis(t)
	ctx := context.Background()
	d := NewDedup(rdb, "stockwatch-svc")

	ok, err := d.AlertOnce(ctx, 5, 2)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.AlertOnce(ctx, 5, 2)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, d.ClearAlert(ctx, 5, 2))
	ok, err = d.AlertOnce(ctx, 5, 2)
	require.NoError(t, err)
	require.True(t, ok)
}
