package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// Migration is one schema step for the membership tables.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the membership schema steps in order. The SQL is kept
// portable between Postgres and SQLite.
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create memberships table",
			SQL: `
				CREATE TABLE IF NOT EXISTS memberships (
					membership_key TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					org_id TEXT NOT NULL,
					roles TEXT NOT NULL DEFAULT '[]',
					status TEXT NOT NULL DEFAULT 'active',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				)
			`,
		},
	}
}

// SQLStore persists memberships in a SQL database.
type SQLStore struct {
	db     *sql.DB
	logger *observability.Logger
	now    func() time.Time
}

// NewSQLStore creates a store over db. logger may be nil.
func NewSQLStore(db *sql.DB, logger *observability.Logger) *SQLStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &SQLStore{db: db, logger: logger, now: time.Now}
}

// Migrate applies pending migrations, one transaction each.
func (s *SQLStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS membership_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT version FROM membership_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range Migrations() {
		if applied[m.Version] {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return err
		}
		s.logger.WithField("version", m.Version).Infof("applied migration: %s", m.Description)
	}
	return nil
}

func (s *SQLStore) applyMigration(ctx context.Context, m Migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO membership_migrations (version, description) VALUES ($1, $2)",
		m.Version, m.Description,
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
	}
	return nil
}

// GetMembership implements MembershipStore with a single primary key lookup.
func (s *SQLStore) GetMembership(ctx context.Context, userID, orgID string) (*Membership, error) {
	query := `
		SELECT user_id, org_id, roles, status, created_at, updated_at
		FROM memberships
		WHERE membership_key = $1
	`
	var (
		m     Membership
		roles string
	)
	err := s.db.QueryRowContext(ctx, query, MembershipKey(userID, orgID)).Scan(
		&m.UserID, &m.OrgID, &roles, &m.Status, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	if !m.belongsTo(userID, orgID) {
		s.logger.WithFields(map[string]interface{}{"user_id": userID, "org_id": orgID}).
			Warn("membership row does not match the requested user and org")
		return nil, ErrMembershipNotFound
	}
	if err := json.Unmarshal([]byte(roles), &m.Roles); err != nil {
		return nil, fmt.Errorf("failed to decode roles: %w", err)
	}
	return &m, nil
}

// PutMembership inserts a membership or replaces its roles and status.
func (s *SQLStore) PutMembership(ctx context.Context, m *Membership) error {
	if m.UserID == "" || m.OrgID == "" {
		return fmt.Errorf("membership requires user and org ids")
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	if !m.Status.Valid() {
		return fmt.Errorf("invalid membership status %q", m.Status)
	}
	roles, err := encodeRoles(m.Roles)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	query := `
		INSERT INTO memberships (membership_key, user_id, org_id, roles, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (membership_key) DO UPDATE SET
			roles = excluded.roles,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		m.Key(), m.UserID, m.OrgID, roles, string(m.Status), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put membership: %w", err)
	}
	return nil
}

// SetRoles replaces the roles of an existing membership.
func (s *SQLStore) SetRoles(ctx context.Context, userID, orgID string, roles []Role) error {
	encoded, err := encodeRoles(roles)
	if err != nil {
		return err
	}
	query := `UPDATE memberships SET roles = $1, updated_at = $2 WHERE membership_key = $3`
	return s.update(ctx, "roles", query, encoded, s.now().UTC(), MembershipKey(userID, orgID))
}

// SetStatus changes the lifecycle state of an existing membership.
func (s *SQLStore) SetStatus(ctx context.Context, userID, orgID string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid membership status %q", status)
	}
	query := `UPDATE memberships SET status = $1, updated_at = $2 WHERE membership_key = $3`
	return s.update(ctx, "status", query, string(status), s.now().UTC(), MembershipKey(userID, orgID))
}

// RemoveMembership deletes a membership.
func (s *SQLStore) RemoveMembership(ctx context.Context, userID, orgID string) error {
	query := `DELETE FROM memberships WHERE membership_key = $1`
	return s.update(ctx, "membership", query, MembershipKey(userID, orgID))
}

func (s *SQLStore) update(ctx context.Context, what, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", what, err)
	}
	if n == 0 {
		return ErrMembershipNotFound
	}
	return nil
}

func encodeRoles(roles []Role) (string, error) {
	for _, r := range roles {
		if Rank(r) < 0 {
			return "", fmt.Errorf("unknown role %q", r)
		}
	}
	if roles == nil {
		roles = []Role{}
	}
	b, err := json.Marshal(roles)
	if err != nil {
		return "", fmt.Errorf("failed to encode roles: %w", err)
	}
	return string(b), nil
}
