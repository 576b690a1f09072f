package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/auth"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/rbac"
)

// Request is one storage access to decide.
type Request struct {
	Path     string
	Op       Op
	Identity *auth.Identity
}

// Decision is the outcome of Evaluate.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	// Rule is the deciding match pattern, empty when no rule matched.
	Rule          string `json:"rule,omitempty"`
	OrgID         string `json:"orgId,omitempty"`
	EffectiveRole string `json:"effectiveRole,omitempty"`
	SuperAdmin    bool   `json:"superAdmin,omitempty"`
}

// Denial reasons.
const (
	ReasonNoIdentity     = "no verified identity"
	ReasonNoRule         = "no matching rule"
	ReasonOpNotAllowed   = "operation not allowed"
	ReasonListDenied     = "collection listing denied"
	ReasonNotMember      = "no active membership"
	ReasonRoleTooLow     = "role below required"
	ReasonNotSelf        = "not the addressed user"
	ReasonNotSuperAdmin  = "super admin required"
	ReasonLookupFailed   = "membership lookup failed"
	ReasonAllowedByRule  = "allowed by rule"
	ReasonSuperAdminPass = "super admin"
)

// Evaluator decides storage accesses against the current rules. Roles are
// always re-derived from the membership store using the verified user id.
type Evaluator struct {
	source  Source
	store   rbac.MembershipStore
	timeout time.Duration
	metrics *observability.Metrics
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithTimeout bounds each membership lookup.
func WithTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMetrics records decisions.
func WithMetrics(m *observability.Metrics) EvaluatorOption {
	return func(e *Evaluator) { e.metrics = m }
}

// NewEvaluator creates an evaluator.
func NewEvaluator(source Source, store rbac.MembershipStore, opts ...EvaluatorOption) (*Evaluator, error) {
	if source == nil || source.Current() == nil {
		return nil, errors.New("rule source is required")
	}
	if store == nil {
		return nil, errors.New("membership store is required")
	}
	e := &Evaluator{source: source, store: store, timeout: 2 * time.Second}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate decides req. A non-nil error means a dependency failed; the
// decision is then a denial.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (Decision, error) {
	decision, err := e.evaluate(ctx, req)
	e.metrics.RulesDecision(string(req.Op), decision.Allowed)
	return decision, err
}

func (e *Evaluator) evaluate(ctx context.Context, req Request) (Decision, error) {
	if req.Identity == nil || req.Identity.UserID == "" {
		return deny(ReasonNoIdentity), nil
	}

	r, vars := e.source.Current().match(req.Path)
	if r == nil {
		return deny(ReasonNoRule), nil
	}
	d := Decision{Rule: r.pattern.source, OrgID: vars[OrgVar]}

	cond, ok := r.allow[req.Op]
	superAdmin := rbac.IsSuperAdmin(req.Identity)

	if req.Op == OpList {
		// listing is never granted through membership
		if ok && superAdmin {
			d.Allowed, d.Reason, d.SuperAdmin = true, ReasonSuperAdminPass, true
			return d, nil
		}
		d.Reason = ReasonListDenied
		return d, nil
	}
	if !ok {
		d.Reason = ReasonOpNotAllowed
		return d, nil
	}

	if superAdmin && (cond.minRole == "" || rbac.SuperAdminCovers(cond.minRole)) {
		d.Allowed, d.Reason, d.SuperAdmin = true, ReasonSuperAdminPass, true
		d.EffectiveRole = string(rbac.SuperAdminRole)
		return d, nil
	}
	if cond.superAdmin {
		d.Reason = ReasonNotSuperAdmin
		return d, nil
	}
	if cond.self && vars[UserVar] != req.Identity.UserID {
		d.Reason = ReasonNotSelf
		return d, nil
	}

	if cond.needsMembership() {
		m, err := e.lookup(ctx, req.Identity.UserID, d.OrgID)
		if errors.Is(err, rbac.ErrMembershipNotFound) {
			d.Reason = ReasonNotMember
			return d, nil
		}
		if err != nil {
			d.Reason = ReasonLookupFailed
			return d, fmt.Errorf("rules: %w", err)
		}
		if !m.Active() {
			d.Reason = ReasonNotMember
			return d, nil
		}
		effective, _ := rbac.EffectiveRole(m.Roles)
		d.EffectiveRole = string(effective)
		if cond.minRole != "" && !rbac.HasRequiredRole(m.Roles, cond.minRole) {
			d.Reason = ReasonRoleTooLow
			return d, nil
		}
	}

	d.Allowed, d.Reason = true, ReasonAllowedByRule
	return d, nil
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

func (e *Evaluator) lookup(ctx context.Context, userID, orgID string) (*rbac.Membership, error) {
	return rbac.LookupMembership(ctx, e.store, userID, orgID, e.timeout, "rules.get_membership", e.metrics)
}
