// Package auth holds the identity types that flow through the guard stack.
//
// # Overview
//
// An Identity is produced by the session authenticator once an opaque session
// credential has been verified. It carries the user id and a tagged Claims
// struct; downstream stages never see an open claims map.
//
// An AuthzContext is produced by the authorization stage after tenant
// membership and role rank have been resolved for the request.
//
//	identity := auth.IdentityFrom(r.Context())   // after authentication
//	authz := auth.AuthzFrom(r.Context())         // after authorization
//
// # Tokens
//
// GenerateToken returns base64url encoded random bytes (at least 32) and is
// used for CSRF tokens and opaque session ids. HashToken derives the storage
// key so raw session ids are never persisted.
//
// # Related Packages
//
//   - pkg/session: verifies credentials and produces Identity
//   - pkg/rbac: resolves AuthzContext
//   - pkg/contextkeys: context key definitions
package auth
