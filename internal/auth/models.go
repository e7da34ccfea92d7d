package auth

import (
	"context"

	"github.com/google/uuid"
)

// Identity is what the external identity provider vouches for.
type Identity struct {
	ExternalID  string
	DisplayName string
	Guest       bool
}

// Resolver maps an external identity to a local user id, provisioning the
// user on first sight.
type Resolver interface {
	ResolveIdentity(ctx context.Context, identity Identity) (uuid.UUID, error)
}

type contextKey struct{}

func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(contextKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
