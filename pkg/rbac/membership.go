package rbac

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrMembershipNotFound is returned when no record exists for a key.
var ErrMembershipNotFound = errors.New("membership not found")

// Status is the lifecycle state of a membership.
type Status string

const (
	StatusActive    Status = "active"
	StatusInvited   Status = "invited"
	StatusSuspended Status = "suspended"
	StatusRemoved   Status = "removed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInvited, StatusSuspended, StatusRemoved:
		return true
	}
	return false
}

// Membership grants a user roles in one organization.
type Membership struct {
	UserID    string    `json:"user_id"`
	OrgID     string    `json:"org_id"`
	Roles     []Role    `json:"roles"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the membership's storage key.
func (m *Membership) Key() string {
	return MembershipKey(m.UserID, m.OrgID)
}

// Active reports whether the membership may authorize requests.
func (m *Membership) Active() bool {
	return m != nil && m.Status == StatusActive
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, "_", `\_`)

// MembershipKey is the exact-lookup key for a (user, org) pair. Backslashes
// and underscores inside the ids are escaped, so distinct pairs never share
// a key and ids without either character map to userID + "_" + orgID.
func MembershipKey(userID, orgID string) string {
	return keyEscaper.Replace(userID) + "_" + keyEscaper.Replace(orgID)
}

// belongsTo reports whether m was granted to exactly userID in orgID.
func (m *Membership) belongsTo(userID, orgID string) bool {
	return m.UserID == userID && m.OrgID == orgID
}

// MembershipStore looks memberships up by exact key. There is deliberately no
// way to enumerate memberships of an organization or a user.
type MembershipStore interface {
	GetMembership(ctx context.Context, userID, orgID string) (*Membership, error)
}
