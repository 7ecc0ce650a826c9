package recovery

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eduaventuras/apiserver/internal/apperr"
	"github.com/eduaventuras/apiserver/types"
)

const (
	DefaultTTL = time.Hour
	tokenBytes = 32
)

// Recovery events reported to an EventRecorder.
const (
	EventIssued   = "issued"
	EventConsumed = "consumed"
	EventExpired  = "expired"
	EventInvalid  = "invalid"
	EventRestored = "restored"
)

// UserLookup resolves the account a token is requested for.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (types.User, error)
}

// EventRecorder counts token lifecycle events.
type EventRecorder interface {
	RecoveryEvent(event string)
}

// Ticket is a freshly issued token. It must be delivered out-of-band.
type Ticket struct {
	Token     string
	Email     string
	ExpiresAt time.Time
}

// Registry owns the recovery token lifecycle on top of a Store.
type Registry struct {
	store    Store
	users    UserLookup
	ttl      time.Duration
	now      func() time.Time
	recorder EventRecorder
}

// Option customises a Registry.
type Option func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithRecorder reports lifecycle events to recorder.
func WithRecorder(recorder EventRecorder) Option {
	return func(r *Registry) {
		r.recorder = recorder
	}
}

// NewRegistry constructs a Registry. A non-positive ttl selects DefaultTTL.
func NewRegistry(store Store, users UserLookup, ttl time.Duration, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	registry := &Registry{
		store: store,
		users: users,
		ttl:   ttl,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(registry)
	}
	return registry
}

// IssueToken creates a token for an existing account.
// Several live tokens may exist for the same e-mail.
func (r *Registry) IssueToken(ctx context.Context, email string) (Ticket, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Ticket{}, apperr.Validation("email is required")
	}
	user, err := r.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Ticket{}, apperr.NotFound("no account for email")
		}
		return Ticket{}, err
	}

	token, err := newToken()
	if err != nil {
		return Ticket{}, err
	}
	entry := Entry{Email: user.Email, ExpiresAt: r.now().Add(r.ttl)}
	if err := r.store.Put(ctx, token, entry); err != nil {
		return Ticket{}, fmt.Errorf("store recovery token: %w", err)
	}
	r.record(EventIssued)
	return Ticket{Token: token, Email: entry.Email, ExpiresAt: entry.ExpiresAt}, nil
}

// ValidateToken reports whether token is live without consuming it.
// Expired entries are evicted. Store failures read as invalid.
func (r *Registry) ValidateToken(ctx context.Context, token string) bool {
	_, err := r.Lookup(ctx, token)
	return err == nil
}

// Lookup returns the e-mail a live token belongs to without consuming it.
func (r *Registry) Lookup(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apperr.InvalidToken("invalid recovery token")
	}
	entry, err := r.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return "", apperr.InvalidToken("invalid recovery token")
		}
		return "", err
	}
	if entry.Expired(r.now()) {
		_ = r.store.Delete(ctx, token)
		r.record(EventExpired)
		return "", apperr.Expired("recovery token expired")
	}
	return entry.Email, nil
}

// Consume redeems token and returns its e-mail. The entry is removed
// atomically, so a second redemption reports InvalidToken. Expired tokens are
// evicted and reported as Expired.
func (r *Registry) Consume(ctx context.Context, token string) (string, error) {
	entry, err := r.take(ctx, token)
	if err != nil {
		return "", err
	}
	r.record(EventConsumed)
	return entry.Email, nil
}

// ConsumeAndReset redeems token and runs reset for its e-mail.
// If reset fails the token is put back while still live.
func (r *Registry) ConsumeAndReset(ctx context.Context, token string, reset func(ctx context.Context, email string) error) error {
	entry, err := r.take(ctx, token)
	if err != nil {
		return err
	}
	if err := reset(ctx, entry.Email); err != nil {
		if !entry.Expired(r.now()) {
			if putErr := r.store.Put(ctx, token, entry); putErr == nil {
				r.record(EventRestored)
			}
		}
		return err
	}
	r.record(EventConsumed)
	return nil
}

func (r *Registry) take(ctx context.Context, token string) (Entry, error) {
	if token == "" {
		r.record(EventInvalid)
		return Entry{}, apperr.InvalidToken("invalid recovery token")
	}
	entry, err := r.store.Take(ctx, token)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			r.record(EventInvalid)
			return Entry{}, apperr.InvalidToken("invalid recovery token")
		}
		return Entry{}, err
	}
	if entry.Expired(r.now()) {
		r.record(EventExpired)
		return Entry{}, apperr.Expired("recovery token expired")
	}
	return entry, nil
}

func (r *Registry) record(event string) {
	if r.recorder != nil {
		r.recorder.RecoveryEvent(event)
	}
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
