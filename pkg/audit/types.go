package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeRateLimited      EventType = "guard.rate_limited"
	EventTypeCSRFRejected     EventType = "guard.csrf_rejected"
	EventTypeAuthFailed       EventType = "guard.authentication_failed"
	EventTypeAccessDenied     EventType = "guard.access_denied"
	EventTypeStepUpRequired   EventType = "guard.step_up_required"
	EventTypeValidationFailed EventType = "guard.validation_failed"
	EventTypeRuleDenied       EventType = "rules.denied"
	EventTypeSessionRevoked   EventType = "session.revoked"
	EventTypeMemberRemoved    EventType = "membership.removed"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event is a single audit record.
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Stage names the guard that produced the event, e.g. "authorize".
	Stage string `json:"stage,omitempty"`
	// Code is the stable error code returned to the client.
	Code string `json:"code,omitempty"`

	UserID string `json:"user_id,omitempty"`
	OrgID  string `json:"org_id,omitempty"`

	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	Message  string         `json:"message,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewEvent builds an event from what the request context already holds.
// r may be nil for events outside an HTTP request.
func NewEvent(ctx context.Context, r *http.Request, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
		OrgID:     contextkeys.GetOrgID(ctx),
	}
	if identity := auth.IdentityFrom(ctx); identity != nil {
		event.UserID = identity.UserID
	}
	if authz := auth.AuthzFrom(ctx); authz != nil {
		event.OrgID = authz.OrgID
	}
	if r != nil {
		event.Method = r.Method
		event.Path = r.URL.Path
		event.IPAddress = httputil.ClientIP(r)
		event.UserAgent = r.UserAgent()
	}
	return event
}

// Rejection builds a denied event for an error returned by a guard.
func Rejection(r *http.Request, eventType EventType, stage string, err error) *Event {
	event := NewEvent(r.Context(), r, eventType, EventStatusDenied)
	event.Stage = stage
	if httpErr := httputil.AsError(err); httpErr != nil {
		event.Code = httpErr.Code
		event.StatusCode = httpErr.Status
		event.Message = httpErr.Message
	}
	return event
}
