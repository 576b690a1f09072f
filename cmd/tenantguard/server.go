package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/csrf"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/middleware"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/ratelimit"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/rules"
	"github.com/platinummonkey/tenantguard/pkg/session"
	"github.com/platinummonkey/tenantguard/pkg/validation"
)

// app holds the constructed components served by the public router.
type app struct {
	logger        *observability.Logger
	metrics       *observability.Metrics
	proxies       *httputil.TrustedProxies
	recorder      audit.Recorder
	limiter       *ratelimit.Limiter
	csrf          *csrf.Guard
	authenticator *session.Authenticator
	authorizer    *rbac.Authorizer
	members       memberStore
	documents     *rules.Guarded
	// sessions is nil when the verifier cannot revoke, e.g. OIDC.
	sessions     revoker
	maxBodyBytes int64
}

func (a *app) routes() *mux.Router {
	opts := middleware.Options{Metrics: a.metrics, Recorder: a.recorder}
	validator := validation.NewBodyValidator(validation.Config{
		MaxBytes:  a.maxBodyBytes,
		Schema:    scheduleSchema,
		Sanitize:  true,
		RawFields: []string{"timezone"},
	})

	// read guards requests that change nothing; write adds CSRF and body
	// validation.
	read := func(required rbac.Role) *middleware.Pipeline {
		return middleware.MustPipeline(
			middleware.RateLimit(a.limiter, opts),
			middleware.Authenticate(a.authenticator, opts),
			middleware.Authorize(a.authorizer, required, opts),
		)
	}
	write := func(required rbac.Role, stepUp ...string) *middleware.Pipeline {
		return middleware.MustPipeline(
			middleware.RateLimit(a.limiter, opts),
			middleware.CSRF(a.csrf, opts),
			middleware.Authenticate(a.authenticator, opts),
			middleware.Authorize(a.authorizer, required, opts, stepUp...),
			middleware.Validate(validator, opts),
		)
	}

	schedules := &scheduleHandlers{docs: a.documents}
	members := &memberHandlers{store: a.members}

	r := mux.NewRouter()
	r.Use(a.proxies.Middleware, httputil.RequestIDMiddleware, httputil.LoggingMiddleware(a.logger), httputil.RecoveryMiddleware(a.logger), a.withRecorder)

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/csrf-token", a.instrument("csrf_token", a.csrf.TokenHandler())).Methods(http.MethodGet)
	api.Handle("/organizations/{orgId}/schedules",
		a.instrument("schedules_list", read(rbac.RoleStaff).ThenFunc(schedules.list))).Methods(http.MethodGet)
	api.Handle("/organizations/{orgId}/schedules",
		a.instrument("schedules_create", write(rbac.RoleScheduler).ThenFunc(schedules.create))).Methods(http.MethodPost)
	api.Handle("/organizations/{orgId}/schedules/{scheduleId}",
		a.instrument("schedules_get", read(rbac.RoleStaff).ThenFunc(schedules.get))).Methods(http.MethodGet)
	api.Handle("/organizations/{orgId}/members/{userId}",
		a.instrument("members_remove", write(rbac.RoleManager, auth.ClaimMFA).ThenFunc(members.remove))).Methods(http.MethodDelete)

	if a.sessions != nil {
		sessions := &sessionHandlers{authenticator: a.authenticator, sessions: a.sessions}
		revoke := middleware.MustPipeline(
			middleware.RateLimit(a.limiter, opts),
			middleware.CSRF(a.csrf, opts),
			middleware.Authenticate(a.authenticator, opts),
		).ThenFunc(sessions.revoke)
		api.Handle("/sessions/revoke", a.instrument("sessions_revoke", revoke)).Methods(http.MethodPost)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, httputil.NotFound("Route not found"))
	})
	return r
}

// handler is the public handler with tracing around the router.
func (a *app) handler() http.Handler {
	return otelhttp.NewHandler(a.routes(), "tenantguard")
}

func (a *app) instrument(route string, h http.Handler) http.Handler {
	if a.metrics == nil {
		return h
	}
	return observability.HTTPMetricsMiddleware(a.metrics, route)(h)
}

func (a *app) withRecorder(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(audit.WithRecorder(r.Context(), a.recorder)))
	})
}
