package auth

import (
	"context"

	"github.com/eduaventuras/apiserver/types"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	gateKey     contextKey = "gate"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	UserID int
	Email  string
	Role   types.Role
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity attached by the gate, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	if !ok || identity.UserID < 1 {
		return Identity{}, false
	}
	return identity, true
}

func gateProcessed(ctx context.Context) bool {
	processed, _ := ctx.Value(gateKey).(bool)
	return processed
}

func markProcessed(ctx context.Context) context.Context {
	return context.WithValue(ctx, gateKey, true)
}
