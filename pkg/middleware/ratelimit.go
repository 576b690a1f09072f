package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/ratelimit"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// RateLimit charges one unit per request against limiter. The X-RateLimit
// headers are set on every response. An unreachable backend denies the
// request with 429 RATE_LIMIT_UNAVAILABLE.
func RateLimit(limiter *ratelimit.Limiter, opts Options) Stage {
	return NewStage(PhaseRateLimit, "ratelimit", func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		result, err := limiter.Allow(r)
		now := time.Now()
		setRateLimitHeaders(w, result)

		if err != nil {
			w.Header().Set(HeaderRetryAfter, strconv.Itoa(result.RetryAfter(now)))
			opts.reject(w, r, "ratelimit", audit.EventTypeRateLimited,
				httputil.BackendUnavailable("Rate limiting unavailable, try again later").
					WithCause(fmt.Errorf("%s backend: %w", limiter.Backend(), err)))
			return
		}
		if !result.Allowed {
			retryAfter := result.RetryAfter(now)
			w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))
			opts.reject(w, r, "ratelimit", audit.EventTypeRateLimited,
				httputil.TooManyRequests("Too many requests").
					WithDetails(map[string]int{"retryAfter": retryAfter}))
			return
		}

		opts.allow("ratelimit")
		next.ServeHTTP(w, r.WithContext(WithRateLimitResult(r.Context(), result)))
	})
}

func setRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	h := w.Header()
	h.Set(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// WithRateLimitResult stores the rate limit outcome in ctx.
func WithRateLimitResult(ctx context.Context, result ratelimit.Result) context.Context {
	return context.WithValue(ctx, contextkeys.RateLimitKey, result)
}

// RateLimitResultFrom returns the rate limit outcome of the request.
func RateLimitResultFrom(ctx context.Context) (ratelimit.Result, bool) {
	result, ok := ctx.Value(contextkeys.RateLimitKey).(ratelimit.Result)
	return result, ok
}
