package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
	"github.com/platinummonkey/tenantguard/pkg/rules"
	"github.com/platinummonkey/tenantguard/pkg/session"
	"github.com/platinummonkey/tenantguard/pkg/validation"
)

var scheduleSchema = validation.MustCompileSchema("schedule", []byte(`{
	"type": "object",
	"additionalProperties": false,
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1, "maxLength": 200},
		"description": {"type": "string", "maxLength": 2000},
		"timezone": {"type": "string", "maxLength": 64},
		"shifts": {
			"type": "array",
			"maxItems": 500,
			"items": {
				"type": "object",
				"additionalProperties": false,
				"required": ["start", "end"],
				"properties": {
					"start": {"type": "string", "minLength": 1},
					"end": {"type": "string", "minLength": 1},
					"assignee": {"type": "string"}
				}
			}
		}
	}
}`))

// Shift is one staffed slot of a schedule.
type Shift struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Assignee string `json:"assignee,omitempty"`
}

// Schedule is the document stored per schedule.
type Schedule struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"orgId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Timezone    string    `json:"timezone,omitempty"`
	Shifts      []Shift   `json:"shifts,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

type scheduleInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Timezone    string  `json:"timezone"`
	Shifts      []Shift `json:"shifts"`
}

func schedulesPath(orgID string) string {
	return "/organizations/" + orgID + "/schedules"
}

type scheduleHandlers struct {
	docs *rules.Guarded
}

func (h *scheduleHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, err := h.docs.List(ctx, schedulesPath(mux.Vars(r)["orgId"]))
	if err != nil {
		writeDocumentError(ctx, w, err)
		return
	}
	schedules := make([]Schedule, 0, len(items))
	for _, data := range items {
		var s Schedule
		if err := json.Unmarshal(data, &s); err != nil {
			httputil.WriteError(w, httputil.Internal(err))
			return
		}
		schedules = append(schedules, s)
	}
	sort.Slice(schedules, func(i, j int) bool {
		if schedules[i].CreatedAt.Equal(schedules[j].CreatedAt) {
			return schedules[i].ID < schedules[j].ID
		}
		return schedules[i].CreatedAt.Before(schedules[j].CreatedAt)
	})
	_ = httputil.WriteSuccess(w, map[string]any{"schedules": schedules})
}

func (h *scheduleHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	data, err := h.docs.Get(ctx, schedulesPath(vars["orgId"])+"/"+vars["scheduleId"])
	if err != nil {
		writeDocumentError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *scheduleHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in scheduleInput
	if err := validation.DecodeBody(ctx, &in); err != nil {
		httputil.WriteError(w, httputil.Internal(err))
		return
	}

	authz := auth.AuthzFrom(ctx)
	s := Schedule{
		ID:          uuid.NewString(),
		OrgID:       authz.OrgID,
		Name:        in.Name,
		Description: in.Description,
		Timezone:    in.Timezone,
		Shifts:      in.Shifts,
		CreatedBy:   auth.IdentityFrom(ctx).UserID,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(s)
	if err != nil {
		httputil.WriteError(w, httputil.Internal(err))
		return
	}
	if err := h.docs.Set(ctx, schedulesPath(s.OrgID)+"/"+s.ID, data); err != nil {
		writeDocumentError(ctx, w, err)
		return
	}
	_ = httputil.WriteCreated(w, s)
}

func writeDocumentError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := observability.FromContext(ctx).WithError(err)
	switch {
	case errors.Is(err, rules.ErrNotFound):
		httputil.WriteError(w, httputil.NotFound("Schedule not found"))
	case errors.Is(err, rules.ErrDenied):
		logger.Warn("document access denied")
		httputil.WriteError(w, httputil.Forbidden(httputil.CodeForbidden, "Access denied").WithCause(err))
	default:
		logger.Error("document store failed")
		httputil.WriteError(w, httputil.Internal(err))
	}
}

// memberStore is what member administration needs from the membership store.
type memberStore interface {
	rbac.MembershipStore
	RemoveMembership(ctx context.Context, userID, orgID string) error
}

type memberHandlers struct {
	store memberStore
}

// remove deletes a membership. Callers cannot remove members ranked above
// themselves unless they act as super admin.
func (h *memberHandlers) remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authz := auth.AuthzFrom(ctx)
	target := mux.Vars(r)["userId"]

	m, err := h.store.GetMembership(ctx, target, authz.OrgID)
	if errors.Is(err, rbac.ErrMembershipNotFound) {
		httputil.WriteError(w, httputil.NotFound("Membership not found"))
		return
	}
	if err != nil {
		httputil.WriteError(w, httputil.Internal(err))
		return
	}
	if !authz.SuperAdmin {
		targetRole, _ := rbac.EffectiveRole(m.Roles)
		if rbac.Rank(targetRole) > rbac.Rank(rbac.Role(authz.EffectiveRole)) {
			httputil.WriteError(w, httputil.Forbidden(httputil.CodeForbidden, "Cannot remove a member with a higher role"))
			return
		}
	}

	if err := h.store.RemoveMembership(ctx, target, authz.OrgID); err != nil {
		if errors.Is(err, rbac.ErrMembershipNotFound) {
			httputil.WriteError(w, httputil.NotFound("Membership not found"))
			return
		}
		httputil.WriteError(w, httputil.Internal(err))
		return
	}

	event := audit.NewEvent(ctx, r, audit.EventTypeMemberRemoved, audit.EventStatusSuccess)
	event.StatusCode = http.StatusNoContent
	event.Metadata = map[string]any{"target_user_id": target, "roles": rbac.Strings(m.Roles)}
	_ = audit.FromContext(ctx).Record(ctx, event)

	httputil.WriteNoContent(w)
}

// revoker ends server-side sessions.
type revoker interface {
	Revoke(ctx context.Context, id string) error
}

type sessionHandlers struct {
	authenticator *session.Authenticator
	sessions      revoker
}

// revoke ends the caller's own session and clears its cookie.
func (h *sessionHandlers) revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.sessions.Revoke(ctx, h.authenticator.Credential(r)); err != nil {
		httputil.WriteError(w, httputil.Internal(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.authenticator.Config().CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})

	event := audit.NewEvent(ctx, r, audit.EventTypeSessionRevoked, audit.EventStatusSuccess)
	event.StatusCode = http.StatusNoContent
	_ = audit.FromContext(ctx).Record(ctx, event)

	httputil.WriteNoContent(w)
}
