package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "session-1", time.Minute)
	t.Cleanup(store.Close)
	return store, mr
}

func TestPayloadRoundTrip(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SavePayload(ctx, "demo1", "cameras: {}"))
	assert.True(t, mr.Exists("embedpool:payload:session-1:demo1"))
	assert.Equal(t, time.Minute, mr.TTL("embedpool:payload:session-1:demo1"))

	got, err := store.LoadPayload(ctx, "demo1")
	require.NoError(t, err)
	assert.Equal(t, "cameras: {}", got)

	require.NoError(t, store.ClearPayload(ctx, "demo1"))
	_, err = store.LoadPayload(ctx, "demo1")
	assert.ErrorIs(t, err, ErrNoPayload)
}

func TestPayloadExpires(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.SavePayload(ctx, "demo1", "x"))
	mr.FastForward(2 * time.Minute)

	_, err := store.LoadPayload(ctx, "demo1")
	assert.ErrorIs(t, err, ErrNoPayload)
}

func TestSessionsAreIsolated(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()
	other := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "session-2", time.Minute)
	defer other.Close()

	require.NoError(t, store.SavePayload(ctx, "demo1", "mine"))
	_, err := other.LoadPayload(ctx, "demo1")
	assert.ErrorIs(t, err, ErrNoPayload)
}

func TestLoadPayloadConnectionError(t *testing.T) {
	store, mr := setupTestRedis(t)
	mr.Close()

	_, err := store.LoadPayload(context.Background(), "demo1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPayload)
}

func TestFlushSession(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	other := NewRedisStore(store.Client, "session-2", time.Minute)
	require.NoError(t, store.SavePayload(ctx, "demo3", "a"))
	require.NoError(t, store.SavePayload(ctx, "demo1", "b"))
	require.NoError(t, other.SavePayload(ctx, "demo1", "c"))

	slots, err := store.SessionSlots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"demo1", "demo3"}, slots)

	n, err := store.FlushSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, mr.Exists("embedpool:payload:session-1:demo1"))
	assert.True(t, mr.Exists("embedpool:payload:session-2:demo1"))

	n, err = store.FlushSession(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNilStore(t *testing.T) {
	var store *RedisStore
	ctx := context.Background()

	assert.ErrorIs(t, store.SavePayload(ctx, "demo1", "x"), ErrNilRedisStore)
	_, err := store.LoadPayload(ctx, "demo1")
	assert.ErrorIs(t, err, ErrNilRedisStore)
	assert.ErrorIs(t, (&RedisStore{}).ClearPayload(ctx, "demo1"), ErrNilRedisStore)
	_, err = store.FlushSession(ctx)
	assert.ErrorIs(t, err, ErrNilRedisStore)
}
