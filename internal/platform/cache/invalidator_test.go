package cache

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestInvalidator(t *testing.T) (*TagInvalidator, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTagInvalidator(client, slog.Default()), client
}

func TestInvalidateDropsRegisteredKeys(t *testing.T) {
	inv, client := newTestInvalidator(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "entries:list:1", "cached", 0).Err())
	require.NoError(t, client.Set(ctx, "entries:list:2", "cached", 0).Err())
	require.NoError(t, inv.Register(ctx, "finance-journal:t1", "entries:list:1"))
	require.NoError(t, inv.Register(ctx, "finance-journal:t1", "entries:list:2"))

	inv.Invalidate(ctx, "finance-journal:t1")

	require.Equal(t, int64(0), client.Exists(ctx, "entries:list:1", "entries:list:2").Val())
	require.Equal(t, int64(0), client.Exists(ctx, keyPrefix+"tag:finance-journal:t1").Val())
}

func TestInvalidateUnknownTagIsNoop(t *testing.T) {
	inv, client := newTestInvalidator(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "untouched", "cached", 0).Err())
	inv.Invalidate(ctx, "missing-tag")
	require.Equal(t, int64(1), client.Exists(ctx, "untouched").Val())
}
