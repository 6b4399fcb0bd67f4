// Package authz implements the page-access authorization model: built-in
// and custom roles, tenant page enablement, and per-user overrides.
package authz

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CustomRole is a tenant-scoped role with an explicit page list.
type CustomRole struct {
	ID         string
	TenantID   string
	Name       string
	Normalized string
	CreatedAt  int64
}

// UserPermission is a time-limited named-capability override.
type UserPermission struct {
	ID         string
	UserID     string
	Permission string
	Granted    bool
	ExpiresAt  int64
	CreatedAt  int64
}

// Repository handles authorization metadata in auth.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new authz repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "authz").Logger(),
	}
}

// CreateCustomRole inserts a custom role. The unique index on
// (tenant_id, normalized) rejects duplicates.
func (r *Repository) CreateCustomRole(role *CustomRole) error {
	_, err := r.db.Exec(`
		INSERT INTO custom_roles (id, tenant_id, name, normalized, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, role.ID, role.TenantID, role.Name, role.Normalized, role.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create custom role: %w", err)
	}
	return nil
}

// ListCustomRoles returns a tenant's custom roles.
func (r *Repository) ListCustomRoles(tenantID string) ([]CustomRole, error) {
	rows, err := r.db.Query(`
		SELECT id, tenant_id, name, normalized, created_at
		FROM custom_roles WHERE tenant_id = ? ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom roles: %w", err)
	}
	defer rows.Close()

	var out []CustomRole
	for rows.Next() {
		var role CustomRole
		if err := rows.Scan(&role.ID, &role.TenantID, &role.Name, &role.Normalized, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan custom role: %w", err)
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// DeleteCustomRole removes a custom role and its page assignments.
func (r *Repository) DeleteCustomRole(tenantID, normalized string) error {
	if _, err := r.db.Exec(`
		DELETE FROM role_page_access WHERE tenant_id = ? AND role = ?
	`, tenantID, normalized); err != nil {
		return fmt.Errorf("failed to clear role pages: %w", err)
	}
	if _, err := r.db.Exec(`
		DELETE FROM custom_roles WHERE tenant_id = ? AND normalized = ?
	`, tenantID, normalized); err != nil {
		return fmt.Errorf("failed to delete custom role: %w", err)
	}
	return nil
}

// SetRolePages replaces the page list assigned to one role in one tenant.
func (r *Repository) SetRolePages(tenantID, role string, pages []string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin page update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM role_page_access WHERE tenant_id = ? AND role = ?`, tenantID, role); err != nil {
		return fmt.Errorf("failed to clear role pages: %w", err)
	}
	for _, page := range pages {
		if _, err := tx.Exec(`
			INSERT INTO role_page_access (tenant_id, role, page) VALUES (?, ?, ?)
		`, tenantID, role, page); err != nil {
			return fmt.Errorf("failed to assign page: %w", err)
		}
	}
	return tx.Commit()
}

// GetRolePages returns the pages assigned to one role in one tenant.
func (r *Repository) GetRolePages(tenantID, role string) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT page FROM role_page_access WHERE tenant_id = ? AND role = ? ORDER BY page
	`, tenantID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to load role pages: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// SetTenantPages replaces the pages the master admin enabled for a tenant.
func (r *Repository) SetTenantPages(tenantID string, pages []string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin page update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM company_available_pages WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("failed to clear tenant pages: %w", err)
	}
	for _, page := range pages {
		if _, err := tx.Exec(`
			INSERT INTO company_available_pages (tenant_id, page) VALUES (?, ?)
		`, tenantID, page); err != nil {
			return fmt.Errorf("failed to enable page: %w", err)
		}
	}
	return tx.Commit()
}

// GetTenantPages returns the pages enabled for a tenant.
func (r *Repository) GetTenantPages(tenantID string) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT page FROM company_available_pages WHERE tenant_id = ? ORDER BY page
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant pages: %w", err)
	}
	defer rows.Close()
	return scanStrings(rows)
}

// GrantPermission records a named-capability override.
func (r *Repository) GrantPermission(p *UserPermission) error {
	_, err := r.db.Exec(`
		INSERT INTO user_permissions (id, user_id, permission, granted, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.Permission, boolToInt(p.Granted), nullableInt(p.ExpiresAt), p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	return nil
}

// ActivePermissions returns a user's unexpired overrides, newest first so
// later overrides win.
func (r *Repository) ActivePermissions(userID string) ([]UserPermission, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, permission, granted, COALESCE(expires_at, 0), created_at
		FROM user_permissions
		WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at DESC
	`, userID, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	defer rows.Close()

	var out []UserPermission
	for rows.Next() {
		var p UserPermission
		var granted int
		if err := rows.Scan(&p.ID, &p.UserID, &p.Permission, &granted, &p.ExpiresAt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		p.Granted = granted != 0
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableInt(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}
