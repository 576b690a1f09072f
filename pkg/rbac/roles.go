package rbac

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/tenantguard/pkg/auth"
)

// Role is a tenant role. Roles are compared by rank only.
type Role string

const (
	RoleStaff     Role = "staff"
	RoleCorporate Role = "corporate"
	RoleScheduler Role = "scheduler"
	RoleManager   Role = "manager"
	RoleAdmin     Role = "admin"
	RoleOrgOwner  Role = "org_owner"
)

// SuperAdminRole held as a global claim grants cross-tenant access up to
// RoleAdmin.
const SuperAdminRole = RoleAdmin

// Hierarchy lists roles from lowest to highest rank. Adding a role between two
// existing ones only requires inserting it here.
var Hierarchy = []Role{
	RoleStaff,
	RoleCorporate,
	RoleScheduler,
	RoleManager,
	RoleAdmin,
	RoleOrgOwner,
}

// Rank returns the position of role in Hierarchy, or -1 for unknown roles.
func Rank(role Role) int {
	for i, r := range Hierarchy {
		if r == role {
			return i
		}
	}
	return -1
}

// ParseRole validates and normalizes a role name.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if Rank(role) < 0 {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

// ParseRoles parses every name, failing on the first unknown one.
func ParseRoles(names []string) ([]Role, error) {
	roles := make([]Role, 0, len(names))
	for _, n := range names {
		role, err := ParseRole(n)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// EffectiveRole returns the highest ranked role held. ok is false when no
// known role is held.
func EffectiveRole(roles []Role) (role Role, ok bool) {
	best := -1
	for _, r := range roles {
		if rank := Rank(r); rank > best {
			best = rank
		}
	}
	if best < 0 {
		return "", false
	}
	return Hierarchy[best], true
}

// HasRequiredRole reports whether max(rank(roles)) >= rank(required). An
// unknown required role is never satisfied.
func HasRequiredRole(roles []Role, required Role) bool {
	need := Rank(required)
	if need < 0 {
		return false
	}
	effective, ok := EffectiveRole(roles)
	return ok && Rank(effective) >= need
}

// IsSuperAdmin reports whether the identity holds the global super admin role.
func IsSuperAdmin(identity *auth.Identity) bool {
	return identity != nil && identity.Claims.HasGlobalRole(string(SuperAdminRole))
}

// SuperAdminCovers reports whether the super admin bypass may satisfy
// required. It stops at RoleAdmin so org_owner actions still need membership.
func SuperAdminCovers(required Role) bool {
	rank := Rank(required)
	return rank >= 0 && rank <= Rank(SuperAdminRole)
}

// Strings converts roles for AuthzContext.
func Strings(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
