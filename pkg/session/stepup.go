package session

import (
	"fmt"
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
)

// CheckClaim returns nil when identity carries claim, 401 when there is no
// identity and 403 STEP_UP_REQUIRED otherwise.
func CheckClaim(identity *auth.Identity, claim string) error {
	if identity == nil {
		return httputil.Unauthorized("No session")
	}
	if !identity.Claims.Has(claim) {
		return httputil.Forbidden(httputil.CodeStepUpRequired, fmt.Sprintf("Step-up authentication required: %s", claim))
	}
	return nil
}

// RequireClaim guards a handler on a claim of the authenticated identity. It
// must run after authentication.
func RequireClaim(claim string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := CheckClaim(auth.IdentityFrom(r.Context()), claim); err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
