// Package session authenticates requests from an opaque session credential.
//
// The Authenticator reads the credential from a cookie (or, when enabled, a
// bearer token), asks a Verifier for the identity behind it and applies a
// bounded timeout. Every verifier failure, including a timeout or a panic,
// is reported as 401 UNAUTHORIZED; none of them become a 500.
//
// Two verifiers ship with the package:
//
//   - RedisStore: server-side sessions keyed by the SHA-256 of an opaque id.
//     Revoking a session takes effect on the next request.
//   - OIDCVerifier: ID tokens checked against an OpenID Connect issuer.
//
// RequireClaim is a step-up guard for routes that need, for example, a
// completed second factor.
package session
