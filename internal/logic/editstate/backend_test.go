package editstate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/patrickwarner/embedpool/internal/db"
	"github.com/patrickwarner/embedpool/internal/page"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisBackend(t *testing.T) (RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store := db.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "sess", time.Minute)
	t.Cleanup(store.Close)
	return RedisBackend{Store: store}, mr
}

func TestRedisBackendRoundTrip(t *testing.T) {
	b, mr := setupRedisBackend(t)
	ctx := context.Background()
	slot := page.NewElement("demo1", page.SlotClass)

	_, ok, err := b.Load(ctx, slot)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Save(ctx, slot, "edited"))
	assert.True(t, mr.Exists("embedpool:payload:sess:demo1"))

	got, ok, err := b.Load(ctx, slot)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "edited", got)

	require.NoError(t, b.Clear(ctx, slot))
	_, ok, err = b.Load(ctx, slot)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisBackendFallsBackToSeededAttribute(t *testing.T) {
	b, _ := setupRedisBackend(t)
	slot := page.NewElement("demo1", page.SlotClass)
	slot.SetAttr(page.AttrPayload, "from manifest")

	got, ok, err := b.Load(context.Background(), slot)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "from manifest", got)
}

func TestRedisBackendUnavailable(t *testing.T) {
	b, mr := setupRedisBackend(t)
	mr.Close()

	slot := page.NewElement("demo1", page.SlotClass)
	assert.Error(t, b.Save(context.Background(), slot, "x"))
	_, _, err := b.Load(context.Background(), slot)
	assert.Error(t, err)
}
