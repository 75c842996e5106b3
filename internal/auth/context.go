package auth

import "context"

type contextKey string

const contextIdentityKey contextKey = "identity"

// WithIdentity returns a copy of ctx carrying the authenticated identity.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, identity)
}

// IdentityFromContext returns the identity bound by Gate.Require.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextIdentityKey).(Identity)
	if !ok || identity.UserID == "" {
		return Identity{}, false
	}
	return identity, true
}
