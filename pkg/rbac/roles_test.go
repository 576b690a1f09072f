package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantguard/pkg/auth"
)

func TestRank_Order(t *testing.T) {
	for i := 1; i < len(Hierarchy); i++ {
		assert.Less(t, Rank(Hierarchy[i-1]), Rank(Hierarchy[i]))
	}
	assert.Equal(t, -1, Rank("janitor"))
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" Manager ")
	require.NoError(t, err)
	assert.Equal(t, RoleManager, role)

	_, err = ParseRole("owner")
	assert.Error(t, err)

	roles, err := ParseRoles([]string{"staff", "admin"})
	require.NoError(t, err)
	assert.Equal(t, []Role{RoleStaff, RoleAdmin}, roles)

	_, err = ParseRoles([]string{"staff", "bogus"})
	assert.Error(t, err)
}

func TestEffectiveRole(t *testing.T) {
	role, ok := EffectiveRole([]Role{RoleStaff, RoleManager, RoleScheduler})
	require.True(t, ok)
	assert.Equal(t, RoleManager, role)

	_, ok = EffectiveRole(nil)
	assert.False(t, ok)

	_, ok = EffectiveRole([]Role{"bogus"})
	assert.False(t, ok)
}

func TestHasRequiredRole(t *testing.T) {
	tests := []struct {
		name     string
		roles    []Role
		required Role
		want     bool
	}{
		{"equal", []Role{RoleScheduler}, RoleScheduler, true},
		{"higher", []Role{RoleOrgOwner}, RoleStaff, true},
		{"lower", []Role{RoleStaff}, RoleManager, false},
		{"max of several", []Role{RoleStaff, RoleAdmin}, RoleManager, true},
		{"no roles", nil, RoleStaff, false},
		{"unknown required", []Role{RoleOrgOwner}, "root", false},
		{"unknown held", []Role{"root"}, RoleStaff, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasRequiredRole(tt.roles, tt.required))
		})
	}
}

func TestSuperAdmin(t *testing.T) {
	admin := &auth.Identity{UserID: "root", Claims: auth.Claims{GlobalRoles: []string{"admin"}}}
	assert.True(t, IsSuperAdmin(admin))
	assert.False(t, IsSuperAdmin(&auth.Identity{UserID: "bob"}))
	assert.False(t, IsSuperAdmin(nil))

	assert.True(t, SuperAdminCovers(RoleStaff))
	assert.True(t, SuperAdminCovers(RoleAdmin))
	assert.False(t, SuperAdminCovers(RoleOrgOwner))
	assert.False(t, SuperAdminCovers("bogus"))
}

func TestMembershipKey(t *testing.T) {
	assert.Equal(t, "u1_orgA", MembershipKey("u1", "orgA"))
	m := &Membership{UserID: "u1", OrgID: "orgA"}
	assert.Equal(t, "u1_orgA", m.Key())
}

func TestMembershipKey_Injective(t *testing.T) {
	pairs := [][2]string{
		{"alice", "acme_corp"},
		{"alice_acme", "corp"},
		{`alice\`, "acme_corp"},
		{`alice\_acme`, "corp"},
		{"alice_", "_corp"},
		{"alice__", "corp"},
		{"alice", "__corp"},
	}
	seen := make(map[string][2]string)
	for _, p := range pairs {
		key := MembershipKey(p[0], p[1])
		prev, dup := seen[key]
		assert.False(t, dup, "%v and %v share key %q", prev, p, key)
		seen[key] = p
	}
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusActive.Valid())
	assert.True(t, StatusRemoved.Valid())
	assert.False(t, Status("pending").Valid())

	assert.True(t, (&Membership{Status: StatusActive}).Active())
	assert.False(t, (&Membership{Status: StatusSuspended}).Active())
	var m *Membership
	assert.False(t, m.Active())
}
