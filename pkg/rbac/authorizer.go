package rbac

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// ErrMembershipInactive means a membership exists but is not active.
var ErrMembershipInactive = errors.New("membership not active")

// Config holds authorizer settings.
type Config struct {
	// Timeout bounds each membership lookup.
	Timeout time.Duration
	// OrgParam names the path variable and query parameter carrying the org id.
	OrgParam string
}

// DefaultConfig returns a 2s lookup timeout and the "orgId" parameter.
func DefaultConfig() Config {
	return Config{Timeout: 2 * time.Second, OrgParam: "orgId"}
}

// Authorizer decides whether an authenticated identity holds a role in the
// organization a request targets.
type Authorizer struct {
	store   MembershipStore
	config  Config
	metrics *observability.Metrics
}

// NewAuthorizer creates an authorizer. metrics may be nil.
func NewAuthorizer(store MembershipStore, config Config, metrics *observability.Metrics) (*Authorizer, error) {
	if store == nil {
		return nil, errors.New("membership store is required")
	}
	def := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.OrgParam == "" {
		config.OrgParam = def.OrgParam
	}
	return &Authorizer{store: store, config: config, metrics: metrics}, nil
}

// OrgID resolves the target organization: path variable, then query
// parameter, then an org already bound to the request context.
func (a *Authorizer) OrgID(r *http.Request) string {
	if id := httputil.PathParam(r, a.config.OrgParam); id != "" {
		return id
	}
	if id := r.URL.Query().Get(a.config.OrgParam); id != "" {
		return id
	}
	if authz := auth.AuthzFrom(r.Context()); authz != nil && authz.OrgID != "" {
		return authz.OrgID
	}
	return contextkeys.GetOrgID(r.Context())
}

// Authorize returns the authorization context for r when the identity holds
// required or higher in the target organization. Every membership failure
// produces the same 403 so callers cannot tell whether a tenant exists.
func (a *Authorizer) Authorize(r *http.Request, required Role) (*auth.AuthzContext, error) {
	if Rank(required) < 0 {
		return nil, httputil.Internal(fmt.Errorf("unknown required role %q", required))
	}

	orgID := a.OrgID(r)
	if orgID == "" {
		return nil, httputil.BadRequest(httputil.CodeOrgNotSpecified, "No organization specified")
	}

	identity := auth.IdentityFrom(r.Context())
	if identity == nil || identity.UserID == "" {
		return nil, httputil.Unauthorized("No session")
	}

	if IsSuperAdmin(identity) && SuperAdminCovers(required) {
		return &auth.AuthzContext{
			OrgID:         orgID,
			Roles:         []string{string(SuperAdminRole)},
			EffectiveRole: string(SuperAdminRole),
			SuperAdmin:    true,
		}, nil
	}

	denied := forbidden(required)

	membership, err := a.lookup(r.Context(), identity.UserID, orgID)
	if err != nil {
		return nil, denied.WithCause(err)
	}
	if !membership.Active() {
		return nil, denied.WithCause(fmt.Errorf("%w: %s", ErrMembershipInactive, membership.Status))
	}

	effective, ok := EffectiveRole(membership.Roles)
	if !ok || Rank(effective) < Rank(required) {
		return nil, denied.WithCause(fmt.Errorf("effective role %q below %q", effective, required))
	}

	return &auth.AuthzContext{
		OrgID:         orgID,
		Roles:         Strings(membership.Roles),
		EffectiveRole: string(effective),
	}, nil
}

func forbidden(required Role) *httputil.Error {
	return httputil.Forbidden(httputil.CodeForbidden, fmt.Sprintf("Requires role %s or higher", required))
}

func (a *Authorizer) lookup(ctx context.Context, userID, orgID string) (*Membership, error) {
	return LookupMembership(ctx, a.store, userID, orgID, a.config.Timeout, "rbac.get_membership", a.metrics)
}
