package shared

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the resolved caller for every engine operation. The engine
// trusts this value; authentication and permission checks happen upstream.
type Identity struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

type identityContextKey struct{}

// ContextWithIdentity stores the caller identity in context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the caller identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
