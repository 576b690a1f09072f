package session

import (
	"context"
	"errors"

	"github.com/platinummonkey/tenantguard/pkg/auth"
)

var (
	// ErrInvalidSession is returned for unknown, expired or revoked credentials.
	ErrInvalidSession = errors.New("invalid session")
	// ErrVerifierUnavailable wraps failures of the verifier's backing service.
	ErrVerifierUnavailable = errors.New("session verifier unavailable")
)

// Verifier resolves a credential to a verified identity.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*auth.Identity, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, credential string) (*auth.Identity, error)

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, credential string) (*auth.Identity, error) {
	return f(ctx, credential)
}
