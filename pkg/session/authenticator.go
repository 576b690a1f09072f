package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// Config holds authenticator settings.
type Config struct {
	// CookieName carries the session credential.
	CookieName string
	// Timeout bounds each verifier call.
	Timeout time.Duration
	// AllowBearer also accepts "Authorization: Bearer <credential>" when no cookie is present.
	AllowBearer bool
}

// DefaultConfig returns the default session cookie and a 2s verifier timeout.
func DefaultConfig() Config {
	return Config{CookieName: "__session", Timeout: 2 * time.Second}
}

// Authenticator verifies the session credential of a request.
type Authenticator struct {
	verifier Verifier
	config   Config
	metrics  *observability.Metrics
}

// NewAuthenticator creates an authenticator. metrics may be nil.
func NewAuthenticator(verifier Verifier, config Config, metrics *observability.Metrics) (*Authenticator, error) {
	if verifier == nil {
		return nil, errors.New("session verifier is required")
	}
	def := DefaultConfig()
	if config.CookieName == "" {
		config.CookieName = def.CookieName
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &Authenticator{verifier: verifier, config: config, metrics: metrics}, nil
}

// Config returns the effective settings.
func (a *Authenticator) Config() Config { return a.config }

// Credential extracts the raw credential from r, empty when absent.
func (a *Authenticator) Credential(r *http.Request) string {
	if cookie, err := r.Cookie(a.config.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if a.config.AllowBearer {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// Authenticate returns the verified identity of r or a 401 *httputil.Error.
func (a *Authenticator) Authenticate(r *http.Request) (*auth.Identity, error) {
	credential := a.Credential(r)
	if credential == "" {
		return nil, httputil.Unauthorized("No session")
	}

	identity, err := a.verify(r.Context(), credential)
	if err != nil {
		return nil, httputil.Unauthorized("Invalid session").WithCause(err)
	}
	if identity == nil || identity.UserID == "" {
		return nil, httputil.Unauthorized("Invalid session").WithCause(ErrInvalidSession)
	}
	return identity, nil
}

type verifyResult struct {
	identity *auth.Identity
	err      error
}

// verify runs the verifier under the timeout. A verifier that ignores its
// context is abandoned once the deadline passes.
func (a *Authenticator) verify(ctx context.Context, credential string) (*auth.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	ctx, span := observability.StartSpan(ctx, "session.verify",
		attribute.String("session.verifier", fmt.Sprintf("%T", a.verifier)))
	start := time.Now()

	done := make(chan verifyResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- verifyResult{err: fmt.Errorf("verifier panic: %v", rec)}
			}
		}()
		identity, err := a.verifier.Verify(ctx, credential)
		done <- verifyResult{identity: identity, err: err}
	}()

	var res verifyResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = verifyResult{err: fmt.Errorf("session verification: %w", ctx.Err())}
	}

	a.metrics.ObserveExternalCall("session_verifier", start, res.err)
	observability.EndSpan(span, res.err)
	return res.identity, res.err
}
