package middleware

import (
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/csrf"
)

// CSRF rejects state-changing requests whose cookie and header tokens differ.
// Safe methods pass unchecked.
func CSRF(guard *csrf.Guard, opts Options) Stage {
	return NewStage(PhaseCSRF, "csrf", func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		if err := guard.Protect(r); err != nil {
			opts.reject(w, r, "csrf", audit.EventTypeCSRFRejected, err)
			return
		}
		opts.allow("csrf")
		next.ServeHTTP(w, r)
	})
}
