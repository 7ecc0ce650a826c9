package recovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eduaventuras/apiserver/internal/apperr"
	"github.com/eduaventuras/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers map[string]types.User

func (f fakeUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	user, ok := f[email]
	if !ok {
		return types.User{}, apperr.ErrNotFound
	}
	return user, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type events map[string]int

func (e events) RecoveryEvent(event string) { e[event]++ }

func newTestRegistry(t *testing.T) (*Registry, *MemoryStore, *clock, events) {
	t.Helper()
	store := NewMemoryStore()
	c := &clock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	recorded := events{}
	users := fakeUsers{"ana@example.com": {ID: 1, Email: "ana@example.com", Active: true}}
	return NewRegistry(store, users, time.Hour, WithClock(c.Now), WithRecorder(recorded)), store, c, recorded
}

func noopReset(context.Context, string) error { return nil }

func TestIssueTokenUnknownEmail(t *testing.T) {
	registry, store, _, _ := newTestRegistry(t)

	_, err := registry.IssueToken(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestIssueTokenStoresEntry(t *testing.T) {
	registry, store, c, recorded := newTestRegistry(t)

	ticket, err := registry.IssueToken(context.Background(), " ANA@example.com ")
	require.NoError(t, err)
	assert.Len(t, ticket.Token, 43)
	assert.Equal(t, "ana@example.com", ticket.Email)
	assert.Equal(t, c.Now().Add(time.Hour), ticket.ExpiresAt)
	assert.Equal(t, 1, recorded[EventIssued])

	other, err := registry.IssueToken(context.Background(), "ana@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, ticket.Token, other.Token)
	assert.Equal(t, 2, store.Len())
}

func TestValidateTokenIsNotConsuming(t *testing.T) {
	registry, _, _, _ := newTestRegistry(t)
	ctx := context.Background()

	ticket, err := registry.IssueToken(ctx, "ana@example.com")
	require.NoError(t, err)

	assert.True(t, registry.ValidateToken(ctx, ticket.Token))
	assert.True(t, registry.ValidateToken(ctx, ticket.Token))
	assert.False(t, registry.ValidateToken(ctx, "unknown"))
	assert.False(t, registry.ValidateToken(ctx, ""))

	email, err := registry.Lookup(ctx, ticket.Token)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", email)
}

func TestValidateTokenEvictsExpired(t *testing.T) {
	registry, store, c, _ := newTestRegistry(t)
	ctx := context.Background()

	ticket, err := registry.IssueToken(ctx, "ana@example.com")
	require.NoError(t, err)

	c.Advance(time.Hour)
	assert.False(t, registry.ValidateToken(ctx, ticket.Token))
	assert.Equal(t, 0, store.Len())
}

func TestConsumeTwice(t *testing.T) {
	registry, _, _, recorded := newTestRegistry(t)
	ctx := context.Background()

	ticket, err := registry.IssueToken(ctx, "ana@example.com")
	require.NoError(t, err)

	var resetFor string
	err = registry.ConsumeAndReset(ctx, ticket.Token, func(_ context.Context, email string) error {
		resetFor = email
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", resetFor)

	err = registry.ConsumeAndReset(ctx, ticket.Token, noopReset)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
	assert.Equal(t, 1, recorded[EventConsumed])
	assert.Equal(t, 1, recorded[EventInvalid])
}

func TestConsumeExpired(t *testing.T) {
	registry, store, c, _ := newTestRegistry(t)
	ctx := context.Background()

	ticket, err := registry.IssueToken(ctx, "ana@example.com")
	require.NoError(t, err)
	c.Advance(61 * time.Minute)

	called := false
	err = registry.ConsumeAndReset(ctx, ticket.Token, func(context.Context, string) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, apperr.ErrExpired)
	assert.False(t, called)
	assert.Equal(t, 0, store.Len())

	err = registry.ConsumeAndReset(ctx, ticket.Token, noopReset)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}

func TestConsumeRestoresTokenWhenResetFails(t *testing.T) {
	registry, _, _, recorded := newTestRegistry(t)
	ctx := context.Background()

	ticket, err := registry.IssueToken(ctx, "ana@example.com")
	require.NoError(t, err)

	failure := errors.New("database unavailable")
	err = registry.ConsumeAndReset(ctx, ticket.Token, func(context.Context, string) error { return failure })
	assert.ErrorIs(t, err, failure)
	assert.True(t, registry.ValidateToken(ctx, ticket.Token))
	assert.Equal(t, 1, recorded[EventRestored])
}

func TestConcurrentConsumeSucceedsOnce(t *testing.T) {
	store := NewMemoryStore()
	users := fakeUsers{"ana@example.com": {ID: 1, Email: "ana@example.com"}}
	registry := NewRegistry(store, users, time.Hour)
	ctx := context.Background()

	ticket, err := registry.IssueToken(ctx, "ana@example.com")
	require.NoError(t, err)

	var successes atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if registry.ConsumeAndReset(ctx, ticket.Token, noopReset) == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), successes.Load())
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, "old", Entry{Email: "a@example.com", ExpiresAt: now.Add(-time.Second)}))
	require.NoError(t, store.Put(ctx, "new", Entry{Email: "b@example.com", ExpiresAt: now.Add(time.Hour)}))

	assert.Equal(t, 1, store.Sweep(now))
	_, err := store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrTokenNotFound)
	_, err = store.Get(ctx, "new")
	assert.NoError(t, err)
}

func TestConsumeReturnsEmail(t *testing.T) {
	registry, store, _, recorded := newTestRegistry(t)
	ctx := context.Background()

	ticket, err := registry.IssueToken(ctx, "Ana@Example.com")
	require.NoError(t, err)

	email, err := registry.Consume(ctx, ticket.Token)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", email)
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 1, recorded[EventConsumed])

	_, err = registry.Consume(ctx, ticket.Token)
	assert.ErrorIs(t, err, apperr.ErrInvalidToken)
}
