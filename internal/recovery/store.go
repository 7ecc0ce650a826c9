// Package recovery issues and redeems single-use password recovery tokens.
package recovery

import (
	"context"
	"time"

	"github.com/eduaventuras/apiserver/internal/apperr"
)

// ErrTokenNotFound is returned by stores for unknown or already redeemed tokens.
var ErrTokenNotFound = apperr.NotFound("recovery token not found")

// Entry is what a recovery token maps to.
type Entry struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store persists token entries. Implementations must be safe for concurrent use
// and Take must remove the entry atomically so a token can be redeemed only once.
type Store interface {
	Put(ctx context.Context, token string, entry Entry) error
	Get(ctx context.Context, token string) (Entry, error)
	Take(ctx context.Context, token string) (Entry, error)
	Delete(ctx context.Context, token string) error
}
