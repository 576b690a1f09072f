package middleware

import (
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/validation"
)

// Validate checks the request body and stores the decoded value for the
// handler.
func Validate(validator *validation.BodyValidator, opts Options) Stage {
	return NewStage(PhaseValidate, "validate", func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		body, err := validator.Validate(r)
		if err != nil {
			opts.reject(w, r, "validate", audit.EventTypeValidationFailed, err)
			return
		}
		opts.allow("validate")
		if body != nil {
			r = r.WithContext(validation.WithBody(r.Context(), body))
		}
		next.ServeHTTP(w, r)
	})
}
