package auth

import "time"

// Claim names understood by Claims.Has.
const (
	ClaimMFA           = "mfa"
	ClaimEmailVerified = "email_verified"
)

// Identity is the verified caller attached by the authentication stage.
type Identity struct {
	UserID string `json:"uid"`
	Claims Claims `json:"claims"`
}

// Claims are the verified attributes of a session.
type Claims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	// MFA is set once the session completed a second factor.
	MFA bool `json:"mfa,omitempty"`
	// GlobalRoles are tenant-independent roles granted by the identity provider.
	GlobalRoles []string       `json:"global_roles,omitempty"`
	IssuedAt    time.Time      `json:"iat,omitempty"`
	ExpiresAt   time.Time      `json:"exp,omitempty"`
	Custom      map[string]any `json:"custom,omitempty"`
}

// Has reports whether a boolean claim is present and true.
func (c Claims) Has(name string) bool {
	switch name {
	case ClaimMFA:
		return c.MFA
	case ClaimEmailVerified:
		return c.EmailVerified
	}
	if c.Custom == nil {
		return false
	}
	v, ok := c.Custom[name].(bool)
	return ok && v
}

// HasGlobalRole reports whether the identity provider granted role globally.
func (c Claims) HasGlobalRole(role string) bool {
	for _, r := range c.GlobalRoles {
		if r == role {
			return true
		}
	}
	return false
}

// AuthzContext is attached by the authorization stage for one organization.
type AuthzContext struct {
	OrgID         string   `json:"org_id"`
	Roles         []string `json:"roles,omitempty"`
	EffectiveRole string   `json:"effective_role"`
	// SuperAdmin is true when access was granted through the cross-tenant bypass.
	SuperAdmin bool `json:"super_admin,omitempty"`
}
