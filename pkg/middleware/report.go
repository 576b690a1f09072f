package middleware

import (
	"context"
	"net/http"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// Options carries the ambient dependencies shared by every stage. All fields
// are optional.
type Options struct {
	// Logger defaults to the request logger in the context.
	Logger *observability.Logger
	Metrics *observability.Metrics
	// Recorder defaults to the audit recorder in the context.
	Recorder audit.Recorder
}

func (o Options) logger(ctx context.Context) *observability.Logger {
	logger := o.Logger
	if logger == nil {
		logger = observability.FromContext(ctx)
	}
	if identity := auth.IdentityFrom(ctx); identity != nil {
		logger = logger.WithField("user_id", identity.UserID)
	}
	return logger
}

func (o Options) recorder(ctx context.Context) audit.Recorder {
	if o.Recorder != nil {
		return o.Recorder
	}
	return audit.FromContext(ctx)
}

func (o Options) allow(stage string) {
	o.Metrics.GuardDecision(stage, observability.OutcomeAllow, "")
}

// reject writes err as the error envelope and reports it. Internal causes
// are logged, never sent.
func (o Options) reject(w http.ResponseWriter, r *http.Request, stage string, eventType audit.EventType, err error) {
	herr := httputil.AsError(err)

	outcome := observability.OutcomeDeny
	if herr.Kind == httputil.KindInternal || herr.Kind == httputil.KindBackendUnavailable {
		outcome = observability.OutcomeError
	}
	o.Metrics.GuardDecision(stage, outcome, herr.Code)

	ctx := r.Context()
	logger := o.logger(ctx).WithFields(map[string]interface{}{
		"stage":  stage,
		"code":   herr.Code,
		"status": herr.Status,
		"path":   r.URL.Path,
	})
	if cause := herr.Unwrap(); cause != nil {
		logger = logger.WithError(cause)
	}
	if outcome == observability.OutcomeError {
		logger.Error("request rejected")
	} else {
		logger.Warn("request rejected")
	}

	if recErr := o.recorder(ctx).Record(ctx, audit.Rejection(r, eventType, stage, herr)); recErr != nil {
		logger.WithError(recErr).Error("failed to record audit event")
	}

	httputil.WriteError(w, herr)
}
