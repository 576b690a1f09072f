// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the guard stack must be defined here.
// Each key documents the stage that sets it and the value type stored under it,
// so a downstream stage can only read what an earlier stage guarantees.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/tenantguard/pkg/contextkeys"
//	ctx = context.WithValue(ctx, contextkeys.IdentityKey, identity)
//	identity, _ := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.Authenticate (pkg/middleware/auth.go)
	// Required by: authorization stage, step-up guards, handlers
	IdentityKey Key = "identity"

	// AuthzKey contains *auth.AuthzContext
	// Set by: middleware.Authorize (pkg/middleware/org.go)
	// Required by: org-scoped handlers
	AuthzKey Key = "authz"

	// OrgIDKey contains the organization id string resolved by an upstream layer
	// Set by: routers that know the tenant before authorization runs
	// Used by: rbac.Authorizer as the last org id fallback
	OrgIDKey Key = "org_id"

	// RateLimitKey contains ratelimit.Result
	// Set by: middleware.RateLimit (pkg/middleware/ratelimit.go)
	RateLimitKey Key = "rate_limit"

	// BodyKey contains the validated request body (any, decoded JSON)
	// Set by: middleware.Validate (pkg/middleware/validate.go)
	BodyKey Key = "validated_body"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	RequestIDKey Key = "request_id"

	// ClientIPKey contains the resolved caller address string
	// Set by: httputil.TrustedProxies.Middleware
	// Used by: httputil.ClientIP (rate limit keys, access log, audit trail)
	ClientIPKey Key = "client_ip"

	// LoggerKey contains *observability.Logger
	// Set by: httputil.LoggingMiddleware
	LoggerKey Key = "logger"

	// AuditRecorderKey contains audit.Recorder
	// Set by: cmd/tenantguard router setup
	AuditRecorderKey Key = "audit_recorder"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithOrgID records an organization id resolved before authorization.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, OrgIDKey, orgID)
}

// GetOrgID retrieves an upstream organization id from context
func GetOrgID(ctx context.Context) string {
	if orgID, ok := ctx.Value(OrgIDKey).(string); ok {
		return orgID
	}
	return ""
}

// WithClientIP records the caller address resolved from the connection.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ClientIPKey, ip)
}

// GetClientIP retrieves the resolved caller address from context
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}
