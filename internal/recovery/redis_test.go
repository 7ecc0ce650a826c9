package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eduaventuras/apiserver/internal/apperr"
	"github.com/eduaventuras/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), mr
}

func TestRedisStoreTakeIsSingleUse(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()
	entry := Entry{Email: "ana@example.com", ExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second)}

	require.NoError(t, store.Put(ctx, "tok", entry))
	assert.True(t, mr.Exists("recovery:tok"))
	assert.Greater(t, mr.TTL("recovery:tok"), time.Hour)

	got, err := store.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, entry.Email, got.Email)
	assert.True(t, entry.ExpiresAt.Equal(got.ExpiresAt))

	_, err = store.Take(ctx, "tok")
	require.NoError(t, err)
	_, err = store.Take(ctx, "tok")
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.False(t, mr.Exists("recovery:tok"))
}

func TestRedisStoreKeyExpiresAfterRetention(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "tok", Entry{Email: "ana@example.com", ExpiresAt: time.Now().Add(time.Minute)}))
	mr.FastForward(time.Minute + expiredRetention + time.Second)

	_, err := store.Get(ctx, "tok")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRedisStoreDeleteIsIdempotent(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, "missing"))
	require.NoError(t, store.Put(ctx, "tok", Entry{Email: "ana@example.com", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Delete(ctx, "tok"))
	require.NoError(t, store.Delete(ctx, "tok"))
}

func TestRegistryOverRedis(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()
	users := fakeUsers{"ana@example.com": {ID: 1, Email: "ana@example.com", Role: types.RoleStudent}}
	registry := NewRegistry(store, users, time.Hour)

	ticket, err := registry.IssueToken(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.True(t, registry.ValidateToken(ctx, ticket.Token))

	require.NoError(t, registry.ConsumeAndReset(ctx, ticket.Token, noopReset))
	err = registry.ConsumeAndReset(ctx, ticket.Token, noopReset)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}
