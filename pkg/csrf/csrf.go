// Package csrf implements double-submit cookie protection: a random token is
// set as a cookie and must be echoed in a request header on every
// state-changing request.
package csrf

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
)

// CookieOptions control the token cookie.
type CookieOptions struct {
	Path     string
	Domain   string
	Secure   bool
	MaxAge   time.Duration
	SameSite http.SameSite
}

// Config holds the guard settings.
type Config struct {
	CookieName  string
	HeaderName  string
	TokenLength int
	Cookie      CookieOptions
}

// DefaultConfig returns the default cookie and header names with 32-byte tokens.
func DefaultConfig() Config {
	return Config{
		CookieName:  "csrf_token",
		HeaderName:  "X-CSRF-Token",
		TokenLength: auth.MinTokenBytes,
		Cookie: CookieOptions{
			Path:     "/",
			Secure:   true,
			MaxAge:   12 * time.Hour,
			SameSite: http.SameSiteStrictMode,
		},
	}
}

// Guard checks and issues CSRF tokens.
type Guard struct {
	config Config
}

// New creates a guard. Zero-valued fields fall back to DefaultConfig.
func New(config Config) (*Guard, error) {
	def := DefaultConfig()
	if config.CookieName == "" {
		config.CookieName = def.CookieName
	}
	if config.HeaderName == "" {
		config.HeaderName = def.HeaderName
	}
	if config.TokenLength == 0 {
		config.TokenLength = def.TokenLength
	}
	if config.TokenLength < auth.MinTokenBytes {
		return nil, fmt.Errorf("csrf token length must be at least %d bytes, got %d", auth.MinTokenBytes, config.TokenLength)
	}
	if config.Cookie.Path == "" {
		config.Cookie.Path = def.Cookie.Path
	}
	if config.Cookie.SameSite == 0 {
		config.Cookie.SameSite = def.Cookie.SameSite
	}
	return &Guard{config: config}, nil
}

// Config returns the effective configuration.
func (g *Guard) Config() Config { return g.config }

// GenerateToken returns base64url(n random bytes). n must be at least 32.
func GenerateToken(n int) (string, error) {
	return auth.GenerateToken(n)
}

// VerifyToken reports whether a and b are the same non-empty token. Digests
// are compared in constant time so neither content nor length leaks through
// timing.
func VerifyToken(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	da := sha256.Sum256([]byte(a))
	db := sha256.Sum256([]byte(b))
	digestsEqual := subtle.ConstantTimeCompare(da[:], db[:]) == 1
	lengthsEqual := subtle.ConstantTimeEq(int32(len(a)), int32(len(b))) == 1
	return digestsEqual && lengthsEqual
}

// Protect returns nil for safe methods and for state-changing requests whose
// header token matches the cookie token. Otherwise it returns a 403
// *httputil.Error distinguished by code.
func (g *Guard) Protect(r *http.Request) error {
	if httputil.IsSafeMethod(r.Method) {
		return nil
	}

	cookie, err := r.Cookie(g.config.CookieName)
	if err != nil || cookie.Value == "" {
		return httputil.CSRFError(httputil.CodeCSRFCookieMissing, "CSRF cookie missing")
	}
	header := r.Header.Get(g.config.HeaderName)
	if header == "" {
		return httputil.CSRFError(httputil.CodeCSRFHeaderMissing, "CSRF token header missing")
	}
	if !VerifyToken(cookie.Value, header) {
		return httputil.CSRFError(httputil.CodeCSRFTokenInvalid, "CSRF token mismatch")
	}
	return nil
}

// EnsureToken returns the request's cookie token, issuing a new cookie when
// none is present.
func (g *Guard) EnsureToken(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(g.config.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	token, err := GenerateToken(g.config.TokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	http.SetCookie(w, g.cookie(token))
	return token, nil
}

func (g *Guard) cookie(token string) *http.Cookie {
	opts := g.config.Cookie
	c := &http.Cookie{
		Name:     g.config.CookieName,
		Value:    token,
		Path:     opts.Path,
		Domain:   opts.Domain,
		Secure:   opts.Secure,
		HttpOnly: true,
		SameSite: opts.SameSite,
	}
	if opts.MaxAge > 0 {
		c.MaxAge = int(opts.MaxAge.Seconds())
	}
	return c
}

// TokenResponse is served by TokenHandler.
type TokenResponse struct {
	CSRFToken string `json:"csrfToken"`
}

// TokenHandler serves the current token so clients can echo it in the header.
func (g *Guard) TokenHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := g.EnsureToken(w, r)
		if err != nil {
			httputil.WriteError(w, httputil.Internal(err))
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		_ = httputil.WriteSuccess(w, TokenResponse{CSRFToken: token})
	})
}
