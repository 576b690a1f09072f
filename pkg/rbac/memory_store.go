package rbac

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process MembershipStore for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	memberships map[string]Membership
}

// NewMemoryStore creates a store seeded with memberships.
func NewMemoryStore(memberships ...Membership) *MemoryStore {
	s := &MemoryStore{memberships: make(map[string]Membership)}
	for _, m := range memberships {
		_ = s.PutMembership(context.Background(), &m)
	}
	return s
}

// GetMembership implements MembershipStore.
func (s *MemoryStore) GetMembership(ctx context.Context, userID, orgID string) (*Membership, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	m, ok := s.memberships[MembershipKey(userID, orgID)]
	s.mu.RUnlock()
	if !ok || !m.belongsTo(userID, orgID) {
		return nil, ErrMembershipNotFound
	}
	m.Roles = append([]Role(nil), m.Roles...)
	return &m, nil
}

// PutMembership inserts or replaces a membership.
func (s *MemoryStore) PutMembership(_ context.Context, m *Membership) error {
	if m.UserID == "" || m.OrgID == "" {
		return fmt.Errorf("membership requires user and org ids")
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	cp.Roles = append([]Role(nil), m.Roles...)
	s.memberships[m.Key()] = cp
	return nil
}

// RemoveMembership deletes a membership.
func (s *MemoryStore) RemoveMembership(_ context.Context, userID, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := MembershipKey(userID, orgID)
	if _, ok := s.memberships[key]; !ok {
		return ErrMembershipNotFound
	}
	delete(s.memberships, key)
	return nil
}
