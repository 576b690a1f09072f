package auth

import (
	"context"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
)

// WithIdentity attaches a verified identity to ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextkeys.IdentityKey, identity)
}

// IdentityFrom returns the identity attached by the authentication stage, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	identity, _ := ctx.Value(contextkeys.IdentityKey).(*Identity)
	return identity
}

// WithAuthz attaches the authorization result to ctx.
func WithAuthz(ctx context.Context, authz *AuthzContext) context.Context {
	return context.WithValue(ctx, contextkeys.AuthzKey, authz)
}

// AuthzFrom returns the authorization result, or nil before authorization ran.
func AuthzFrom(ctx context.Context) *AuthzContext {
	authz, _ := ctx.Value(contextkeys.AuthzKey).(*AuthzContext)
	return authz
}
