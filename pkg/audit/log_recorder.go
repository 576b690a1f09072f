package audit

import (
	"context"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// LogRecorder writes events as structured log lines.
type LogRecorder struct {
	logger *observability.Logger
}

// NewLogRecorder creates a recorder on logger.
func NewLogRecorder(logger *observability.Logger) *LogRecorder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &LogRecorder{logger: logger.WithField("component", "audit")}
}

// Record implements Recorder.
func (l *LogRecorder) Record(_ context.Context, event *Event) error {
	fields := map[string]interface{}{
		"event_type": string(event.Type),
		"status":     string(event.Status),
	}
	add := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	add("stage", event.Stage)
	add("code", event.Code)
	add("user_id", event.UserID)
	add("org_id", event.OrgID)
	add("request_id", event.RequestID)
	add("ip_address", event.IPAddress)
	add("method", event.Method)
	add("path", event.Path)
	if event.StatusCode != 0 {
		fields["status_code"] = event.StatusCode
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := l.logger.WithFields(fields)
	if event.Status == EventStatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

// Close implements Recorder.
func (l *LogRecorder) Close() error { return nil }
