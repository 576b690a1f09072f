package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// KeyGenerator derives the bucket key of a request, before the prefix is applied.
type KeyGenerator func(r *http.Request) string

// Config defines rate limiting configuration
type Config struct {
	// Max is the number of cost units allowed per window
	Max int
	// Window is the fixed window length
	Window time.Duration
	// KeyPrefix namespaces keys, e.g. "api:" vs "login:"
	KeyPrefix string
	// KeyGenerator defaults to DefaultKeyGenerator
	KeyGenerator KeyGenerator
}

// DefaultConfig returns default rate limit settings
func DefaultConfig() Config {
	return Config{
		Max:          100,
		Window:       time.Minute,
		KeyGenerator: DefaultKeyGenerator,
	}
}

// Limiter applies one Config to a Store.
type Limiter struct {
	store   Store
	config  Config
	metrics *observability.Metrics
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithMetrics records decisions and backend errors.
func WithMetrics(m *observability.Metrics) LimiterOption {
	return func(l *Limiter) { l.metrics = m }
}

// NewLimiter validates config and binds it to store.
func NewLimiter(store Store, config Config, opts ...LimiterOption) (*Limiter, error) {
	if store == nil {
		return nil, errors.New("rate limit store is required")
	}
	if config.Max <= 0 {
		return nil, fmt.Errorf("rate limit max must be positive, got %d", config.Max)
	}
	if config.Window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive, got %s", config.Window)
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = DefaultKeyGenerator
	}
	l := &Limiter{store: store, config: config}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Config returns the limiter configuration.
func (l *Limiter) Config() Config { return l.config }

// Backend names the underlying store.
func (l *Limiter) Backend() string { return l.store.Backend() }

// Key returns the prefixed bucket key for r.
func (l *Limiter) Key(r *http.Request) string {
	return l.config.KeyPrefix + l.config.KeyGenerator(r)
}

// Consume charges cost against key. On a store failure the returned Result is
// denied and err wraps ErrBackendUnavailable.
func (l *Limiter) Consume(ctx context.Context, key string, cost int) (Result, error) {
	start := time.Now()
	result, err := l.store.Consume(ctx, key, cost, l.config.Max, l.config.Window)
	l.metrics.ObserveExternalCall("ratelimit_"+l.store.Backend(), start, err)

	if err != nil {
		if !errors.Is(err, ErrInvalidArgument) {
			l.metrics.RateLimitBackendError(l.store.Backend())
		}
		result.Allowed = false
		result.Limit = l.config.Max
		result.Remaining = 0
		if result.ResetAt.IsZero() {
			result.ResetAt = time.Now().Add(l.config.Window)
		}
		return result, err
	}

	l.metrics.RateLimitDecision(l.store.Backend(), result.Allowed)
	return result, nil
}

// Allow consumes one unit for r.
func (l *Limiter) Allow(r *http.Request) (Result, error) {
	return l.Consume(r.Context(), l.Key(r), 1)
}

// DefaultKeyGenerator keys by route template, client IP and, when an identity
// is already attached, user id.
func DefaultKeyGenerator(r *http.Request) string {
	route := r.URL.Path
	if current := mux.CurrentRoute(r); current != nil {
		if tmpl, err := current.GetPathTemplate(); err == nil {
			route = tmpl
		}
	}
	key := route + ":" + httputil.ClientIP(r)
	if identity := auth.IdentityFrom(r.Context()); identity != nil && identity.UserID != "" {
		key += ":" + identity.UserID
	}
	return key
}

// IPKeyGenerator keys by client IP only, e.g. for login endpoints.
func IPKeyGenerator(r *http.Request) string {
	return "ip:" + httputil.ClientIP(r)
}
