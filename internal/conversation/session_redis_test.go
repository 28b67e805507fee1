package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisSessionStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisSessionStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisSessionStore(client, ttl)
}

func TestRedisSessionStoreRoundTrip(t *testing.T) {
	mr, store := newRedisSessionStore(t, time.Hour)
	ctx := context.Background()

	empty, err := store.Get(ctx, "whatsapp:+5491155550000")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, store.Append(ctx, "whatsapp:+5491155550000", Turn{Role: RolePatient, Text: "Hola"}))
	require.NoError(t, store.Append(ctx, "whatsapp:+5491155550000", Turn{Role: RoleAssistant, Text: "¿En qué te ayudo?"}))

	turns, err := store.Get(ctx, "whatsapp:+5491155550000")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, RolePatient, turns[0].Role)
	assert.Equal(t, "¿En qué te ayudo?", turns[1].Text)
	assert.True(t, mr.Exists("session:whatsapp:+5491155550000"))
	assert.Equal(t, time.Hour, mr.TTL("session:whatsapp:+5491155550000"))
}

func TestRedisSessionStoreExpires(t *testing.T) {
	mr, store := newRedisSessionStore(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "p1", Turn{Role: RolePatient, Text: "Hola"}))
	mr.FastForward(2 * time.Minute)

	turns, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRedisSessionStoreClear(t *testing.T) {
	mr, store := newRedisSessionStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "p1", Turn{Role: RolePatient, Text: "Hola"}))
	require.NoError(t, store.Clear(ctx, "p1"))
	assert.False(t, mr.Exists("session:p1"))
}

func TestRedisSessionStoreUnavailable(t *testing.T) {
	mr, store := newRedisSessionStore(t, time.Hour)
	mr.Close()

	_, err := store.Get(context.Background(), "p1")
	require.Error(t, err)
	err = store.Append(context.Background(), "p1", Turn{Role: RolePatient, Text: "Hola"})
	require.Error(t, err)
}
