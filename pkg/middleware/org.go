package middleware

import (
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/session"
)

// Authorize requires required or higher in the target organization and
// attaches the resulting AuthzContext. Each claim in stepUp must also be
// held by the identity, otherwise the request fails with 403
// STEP_UP_REQUIRED.
func Authorize(authorizer *rbac.Authorizer, required rbac.Role, opts Options, stepUp ...string) Stage {
	return NewStage(PhaseAuthorize, "authorize", func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		authz, err := authorizer.Authorize(r, required)
		if err != nil {
			opts.reject(w, r, "authorize", audit.EventTypeAccessDenied, err)
			return
		}

		ctx := auth.WithAuthz(r.Context(), authz)
		ctx = contextkeys.WithOrgID(ctx, authz.OrgID)
		r = r.WithContext(ctx)

		identity := auth.IdentityFrom(ctx)
		for _, claim := range stepUp {
			if err := session.CheckClaim(identity, claim); err != nil {
				opts.reject(w, r, "authorize", stepUpEvent(err), err)
				return
			}
		}

		opts.allow("authorize")
		next.ServeHTTP(w, r)
	})
}

func stepUpEvent(err error) audit.EventType {
	if herr := httputil.AsError(err); herr.Code == httputil.CodeStepUpRequired {
		return audit.EventTypeStepUpRequired
	}
	return audit.EventTypeAccessDenied
}
