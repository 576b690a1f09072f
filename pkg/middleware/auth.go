package middleware

import (
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/session"
)

// Authenticate verifies the session credential and attaches the identity.
// Every failure is a 401.
func Authenticate(authenticator *session.Authenticator, opts Options) Stage {
	return NewStage(PhaseAuthenticate, "authenticate", func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		identity, err := authenticator.Authenticate(r)
		if err != nil {
			opts.reject(w, r, "authenticate", audit.EventTypeAuthFailed, err)
			return
		}
		opts.allow("authenticate")
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}
