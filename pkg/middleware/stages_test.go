package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/csrf"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/ratelimit"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/session"
	"github.com/platinummonkey/tenantguard/pkg/validation"
)

type captureRecorder struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (c *captureRecorder) Record(_ context.Context, e *audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureRecorder) Close() error { return nil }

type brokenStore struct{}

func (brokenStore) Backend() string { return "redis" }

func (brokenStore) Consume(context.Context, string, int, int, time.Duration) (ratelimit.Result, error) {
	return ratelimit.Result{}, ratelimit.ErrBackendUnavailable
}

var testIdentities = map[string]*auth.Identity{
	"sess-u1":    {UserID: "u1"},
	"sess-u2":    {UserID: "u2"},
	"sess-root":  {UserID: "root", Claims: auth.Claims{GlobalRoles: []string{"admin"}}},
	"sess-mfa":   {UserID: "u1", Claims: auth.Claims{MFA: true}},
	"sess-owner": {UserID: "u3"},
}

type testStack struct {
	router   *mux.Router
	metrics  *observability.Metrics
	recorder *captureRecorder
	seen     *auth.AuthzContext
	body     any
	// stack builds the full guard pipeline in front of the capture handler.
	stack func(required rbac.Role, stepUp ...string) http.Handler
}

func newTestStack(t *testing.T, store ratelimit.Store, max int) *testStack {
	t.Helper()
	s := &testStack{
		router:   mux.NewRouter(),
		metrics:  observability.NewMetrics(prometheus.NewRegistry()),
		recorder: &captureRecorder{},
	}
	opts := Options{Logger: observability.NopLogger(), Metrics: s.metrics, Recorder: s.recorder}

	limiter, err := ratelimit.NewLimiter(store, ratelimit.Config{Max: max, Window: time.Minute})
	require.NoError(t, err)
	guard, err := csrf.New(csrf.Config{})
	require.NoError(t, err)
	verifier := session.VerifierFunc(func(_ context.Context, credential string) (*auth.Identity, error) {
		if identity, ok := testIdentities[credential]; ok {
			return identity, nil
		}
		return nil, session.ErrInvalidSession
	})
	authenticator, err := session.NewAuthenticator(verifier, session.DefaultConfig(), s.metrics)
	require.NoError(t, err)
	authorizer, err := rbac.NewAuthorizer(rbac.NewMemoryStore(
		rbac.Membership{UserID: "u1", OrgID: "orgA", Roles: []rbac.Role{rbac.RoleManager}},
		rbac.Membership{UserID: "u2", OrgID: "orgA", Roles: []rbac.Role{rbac.RoleStaff}},
		rbac.Membership{UserID: "u3", OrgID: "orgA", Roles: []rbac.Role{rbac.RoleOrgOwner}},
		rbac.Membership{UserID: "u4", OrgID: "orgB", Roles: []rbac.Role{rbac.RoleOrgOwner}},
	), rbac.DefaultConfig(), s.metrics)
	require.NoError(t, err)
	validator := validation.NewBodyValidator(validation.Config{
		Schema: validation.MustCompileSchema("schedule", []byte(`{
			"type": "object",
			"properties": {"name": {"type": "string", "minLength": 1}},
			"required": ["name"]
		}`)),
	})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.seen = auth.AuthzFrom(r.Context())
		s.body = validation.BodyFrom(r.Context())
		_ = httputil.WriteSuccess(w, map[string]string{"ok": "true"})
	})
	s.stack = func(required rbac.Role, stepUp ...string) http.Handler {
		return MustPipeline(
			RateLimit(limiter, opts),
			CSRF(guard, opts),
			Authenticate(authenticator, opts),
			Authorize(authorizer, required, opts, stepUp...),
			Validate(validator, opts),
		).Then(handler)
	}
	s.router.Handle("/organizations/{orgId}/schedules", s.stack(rbac.RoleStaff)).Methods(http.MethodGet)
	s.router.Handle("/organizations/{orgId}/schedules", s.stack(rbac.RoleScheduler)).Methods(http.MethodPost)
	s.router.Handle("/organizations/{orgId}/members/{userId}", s.stack(rbac.RoleManager, auth.ClaimMFA)).Methods(http.MethodDelete)
	return s
}

func (s *testStack) do(method, path, sessionID, body string, csrfTokens ...string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if sessionID != "" {
		r.AddCookie(&http.Cookie{Name: "__session", Value: sessionID})
	}
	if len(csrfTokens) > 0 && csrfTokens[0] != "" {
		r.AddCookie(&http.Cookie{Name: "csrf_token", Value: csrfTokens[0]})
	}
	if len(csrfTokens) > 1 && csrfTokens[1] != "" {
		r.Header.Set("X-CSRF-Token", csrfTokens[1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, r)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorBody {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

func TestRateLimit_Scenario(t *testing.T) {
	s := newTestStack(t, ratelimit.NewMemoryStore(), 2)

	first := s.do(http.MethodGet, "/organizations/orgA/schedules", "sess-u1", "")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "1", first.Header().Get(HeaderRateLimitRemaining))
	assert.NotEmpty(t, first.Header().Get(HeaderRateLimitReset))

	second := s.do(http.MethodGet, "/organizations/orgA/schedules", "sess-u1", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "0", second.Header().Get(HeaderRateLimitRemaining))

	third := s.do(http.MethodGet, "/organizations/orgA/schedules", "sess-u1", "")
	require.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, httputil.CodeRateLimited, errorBody(t, third).Code)
	assert.Equal(t, "2", third.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "0", third.Header().Get(HeaderRateLimitRemaining))
	retryAfter, err := strconv.Atoi(third.Header().Get(HeaderRetryAfter))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retryAfter, 1)
	assert.LessOrEqual(t, retryAfter, 60)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.GuardDecisionsTotal.WithLabelValues("ratelimit", "deny", httputil.CodeRateLimited)))
	require.Len(t, s.recorder.events, 1)
	assert.Equal(t, audit.EventTypeRateLimited, s.recorder.events[0].Type)
}

func TestRateLimit_BackendFailureFailsClosed(t *testing.T) {
	s := newTestStack(t, brokenStore{}, 10)

	rec := s.do(http.MethodPost, "/organizations/orgA/schedules", "", `{"name":"x"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := errorBody(t, rec)
	assert.Equal(t, httputil.CodeRateLimitUnavailable, body.Code)
	assert.NotContains(t, rec.Body.String(), "backend unavailable", "causes stay internal")
	assert.NotEmpty(t, rec.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "10", rec.Header().Get(HeaderRateLimitLimit))
	assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.GuardDecisionsTotal.WithLabelValues("ratelimit", "error", httputil.CodeRateLimitUnavailable)))
	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.GuardDecisionsTotal.WithLabelValues("csrf", "deny", httputil.CodeCSRFCookieMissing)),
		"csrf never runs after a rate limit rejection")
}

func TestCSRF_Scenario(t *testing.T) {
	s := newTestStack(t, ratelimit.NewMemoryStore(), 100)

	ok := s.do(http.MethodPost, "/organizations/orgA/schedules", "sess-u1", `{"name":"week 1"}`, "abc", "abc")
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())

	bad := s.do(http.MethodPost, "/organizations/orgA/schedules", "sess-u1", `{"name":"week 1"}`, "abc", "abd")
	require.Equal(t, http.StatusForbidden, bad.Code)
	assert.Equal(t, httputil.CodeCSRFTokenInvalid, errorBody(t, bad).Code)

	noCookie := s.do(http.MethodPost, "/organizations/orgA/schedules", "sess-u1", `{"name":"week 1"}`, "", "abc")
	assert.Equal(t, httputil.CodeCSRFCookieMissing, errorBody(t, noCookie).Code)

	noHeader := s.do(http.MethodPost, "/organizations/orgA/schedules", "sess-u1", `{"name":"week 1"}`, "abc")
	assert.Equal(t, httputil.CodeCSRFHeaderMissing, errorBody(t, noHeader).Code)
}

func TestAuthenticate_Rejections(t *testing.T) {
	s := newTestStack(t, ratelimit.NewMemoryStore(), 100)

	none := s.do(http.MethodGet, "/organizations/orgA/schedules", "", "")
	require.Equal(t, http.StatusUnauthorized, none.Code)
	assert.Equal(t, "No session", errorBody(t, none).Message)

	invalid := s.do(http.MethodGet, "/organizations/orgA/schedules", "sess-forged", "")
	require.Equal(t, http.StatusUnauthorized, invalid.Code)
	body := errorBody(t, invalid)
	assert.Equal(t, httputil.CodeUnauthorized, body.Code)
	assert.Equal(t, "Invalid session", body.Message)

	assert.Equal(t, 0.0, testutil.ToFloat64(s.metrics.GuardDecisionsTotal.WithLabelValues("authorize", "allow", "")),
		"authorization never runs after an authentication rejection")
}

func TestAuthorize_TenantIsolation(t *testing.T) {
	s := newTestStack(t, ratelimit.NewMemoryStore(), 100)

	own := s.do(http.MethodGet, "/organizations/orgA/schedules", "sess-u1", "")
	require.Equal(t, http.StatusOK, own.Code)
	require.NotNil(t, s.seen)
	assert.Equal(t, "orgA", s.seen.OrgID)
	assert.Equal(t, "manager", s.seen.EffectiveRole)

	foreign := s.do(http.MethodGet, "/organizations/orgB/schedules", "sess-u1", "")
	require.Equal(t, http.StatusForbidden, foreign.Code)
	lowRole := s.do(http.MethodPost, "/organizations/orgA/schedules", "sess-u2", `{"name":"x"}`, "tok", "tok")
	require.Equal(t, http.StatusForbidden, lowRole.Code)
	assert.Equal(t, errorBody(t, lowRole).Code, errorBody(t, foreign).Code)

	s.seen = nil
	root := s.do(http.MethodGet, "/organizations/orgB/schedules", "sess-root", "")
	require.Equal(t, http.StatusOK, root.Code)
	assert.True(t, s.seen.SuperAdmin)
}

func TestAuthorize_TenantIsolationMatrix(t *testing.T) {
	s := newTestStack(t, ratelimit.NewMemoryStore(), 1000)
	methods := []string{http.MethodGet, http.MethodPost, http.MethodDelete}
	for _, role := range rbac.Hierarchy {
		route := s.router.Handle("/organizations/{orgId}/guarded/"+string(role), s.stack(role))
		route.Methods(methods...)
	}

	call := func(method, org string, role rbac.Role, sessionID string) *httptest.ResponseRecorder {
		path := "/organizations/" + org + "/guarded/" + string(role)
		switch method {
		case http.MethodPost:
			return s.do(method, path, sessionID, `{"name":"x"}`, "tok", "tok")
		case http.MethodDelete:
			return s.do(method, path, sessionID, "", "tok", "tok")
		}
		return s.do(method, path, sessionID, "")
	}

	for _, sessionID := range []string{"sess-u1", "sess-owner"} {
		for _, method := range methods {
			for _, role := range rbac.Hierarchy {
				t.Run(sessionID+"/"+method+"/"+string(role), func(t *testing.T) {
					rec := call(method, "orgB", role, sessionID)
					require.Equal(t, http.StatusForbidden, rec.Code)
					body := errorBody(t, rec)
					assert.Equal(t, httputil.CodeForbidden, body.Code)
					assert.Equal(t, "Requires role "+string(role)+" or higher", body.Message)
				})
			}
		}
	}

	// the same routes work in the caller's own tenant
	for _, method := range methods {
		for _, role := range rbac.Hierarchy {
			rec := call(method, "orgA", role, "sess-u1")
			if rbac.Rank(role) <= rbac.Rank(rbac.RoleManager) {
				assert.Equal(t, http.StatusOK, rec.Code, "%s %s", method, role)
			} else {
				assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", method, role)
			}
		}
	}

	// super admins cross tenants up to admin, never org_owner
	for _, method := range methods {
		for _, role := range rbac.Hierarchy {
			s.seen = nil
			rec := call(method, "orgB", role, "sess-root")
			if role == rbac.RoleOrgOwner {
				require.Equal(t, http.StatusForbidden, rec.Code, method)
				assert.Equal(t, httputil.CodeForbidden, errorBody(t, rec).Code)
				continue
			}
			require.Equal(t, http.StatusOK, rec.Code, "%s %s", method, role)
			require.NotNil(t, s.seen)
			assert.True(t, s.seen.SuperAdmin)
			assert.Equal(t, "orgB", s.seen.OrgID)
		}
	}
}

func TestAuthorize_StepUp(t *testing.T) {
	s := newTestStack(t, ratelimit.NewMemoryStore(), 100)

	plain := s.do(http.MethodDelete, "/organizations/orgA/members/u2", "sess-u1", "", "tok", "tok")
	require.Equal(t, http.StatusForbidden, plain.Code)
	assert.Equal(t, httputil.CodeStepUpRequired, errorBody(t, plain).Code)
	require.NotEmpty(t, s.recorder.events)
	assert.Equal(t, audit.EventTypeStepUpRequired, s.recorder.events[len(s.recorder.events)-1].Type)

	mfa := s.do(http.MethodDelete, "/organizations/orgA/members/u2", "sess-mfa", "", "tok", "tok")
	assert.Equal(t, http.StatusOK, mfa.Code)
}

func TestValidate_Stage(t *testing.T) {
	s := newTestStack(t, ratelimit.NewMemoryStore(), 100)

	invalid := s.do(http.MethodPost, "/organizations/orgA/schedules", "sess-u1", `{"name":""}`, "tok", "tok")
	require.Equal(t, http.StatusUnprocessableEntity, invalid.Code)
	body := errorBody(t, invalid)
	assert.Equal(t, httputil.CodeValidationFailed, body.Code)
	assert.NotNil(t, body.Details)

	valid := s.do(http.MethodPost, "/organizations/orgA/schedules", "sess-u1", `{"name":"week 1"}`, "tok", "tok")
	require.Equal(t, http.StatusOK, valid.Code)
	assert.Equal(t, map[string]any{"name": "week 1"}, s.body)
}

func TestRateLimitResultFrom(t *testing.T) {
	_, ok := RateLimitResultFrom(context.Background())
	assert.False(t, ok)

	ctx := WithRateLimitResult(context.Background(), ratelimit.Result{Allowed: true, Limit: 5, Remaining: 4})
	result, ok := RateLimitResultFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, 4, result.Remaining)
}

func TestReject_UntypedErrorIsInternal(t *testing.T) {
	recorder := &captureRecorder{}
	opts := Options{Logger: observability.NopLogger(), Recorder: recorder}
	rec := httptest.NewRecorder()
	opts.reject(rec, httptest.NewRequest(http.MethodGet, "/", nil), "custom", audit.EventTypeAccessDenied, errors.New("secret detail"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
	assert.Equal(t, httputil.CodeInternal, errorBody(t, rec).Code)
	require.Len(t, recorder.events, 1)
	assert.Equal(t, http.StatusInternalServerError, recorder.events[0].StatusCode)
}
