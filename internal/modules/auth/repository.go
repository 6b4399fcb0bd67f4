package auth

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles users, tenants and sessions in auth.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new auth repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "auth").Logger(),
	}
}

const userColumns = `id, email, username, COALESCE(password_hash, ''), role, COALESCE(tenant_id, ''),
	verified, archived, COALESCE(magic_token, ''), COALESCE(magic_code, ''), COALESCE(magic_expires, 0),
	COALESCE(totp_secret, ''), totp_enabled, COALESCE(recovery_codes, ''),
	COALESCE(invitation_token, ''), COALESCE(invitation_expires, 0), created_at, updated_at`

// CreateUser inserts a new user.
func (r *Repository) CreateUser(u *User) error {
	_, err := r.db.Exec(`
		INSERT INTO users (id, email, username, password_hash, role, tenant_id, verified,
			archived, magic_token, magic_code, magic_expires, totp_secret, totp_enabled,
			recovery_codes, invitation_token, invitation_expires, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Username, nullable(u.PasswordHash), u.Role, nullable(u.TenantID),
		boolToInt(u.Verified), boolToInt(u.Archived), nullable(u.MagicToken),
		nullable(u.MagicCode), nullableInt(u.MagicExpires), nullable(u.TOTPSecret),
		boolToInt(u.TOTPEnabled), nullable(u.RecoveryCodes), nullable(u.InvitationToken),
		nullableInt(u.InvitationExpires), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID loads one user. Returns nil when missing.
func (r *Repository) GetUserByID(id string) (*User, error) {
	return r.getUserWhere("id = ?", id)
}

// GetUserByEmail loads one user by email, case-insensitively.
func (r *Repository) GetUserByEmail(email string) (*User, error) {
	return r.getUserWhere("email = ? COLLATE NOCASE", email)
}

// GetUserByMagicToken resolves a magic-link token.
func (r *Repository) GetUserByMagicToken(token string) (*User, error) {
	return r.getUserWhere("magic_token = ?", token)
}

// GetUserByInvitationToken resolves an invitation token.
func (r *Repository) GetUserByInvitationToken(token string) (*User, error) {
	return r.getUserWhere("invitation_token = ?", token)
}

func (r *Repository) getUserWhere(where string, args ...interface{}) (*User, error) {
	row := r.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE `+where, args...)

	var u User
	var verified, archived, totpEnabled int
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.TenantID,
		&verified, &archived, &u.MagicToken, &u.MagicCode, &u.MagicExpires,
		&u.TOTPSecret, &totpEnabled, &u.RecoveryCodes, &u.InvitationToken,
		&u.InvitationExpires, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	u.Verified = verified != 0
	u.Archived = archived != 0
	u.TOTPEnabled = totpEnabled != 0
	return &u, nil
}

// ListUsersByTenant returns a tenant's users, including archived ones.
func (r *Repository) ListUsersByTenant(tenantID string) ([]User, error) {
	rows, err := r.db.Query(`SELECT `+userColumns+` FROM users WHERE tenant_id = ? ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		var verified, archived, totpEnabled int
		err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.TenantID,
			&verified, &archived, &u.MagicToken, &u.MagicCode, &u.MagicExpires,
			&u.TOTPSecret, &totpEnabled, &u.RecoveryCodes, &u.InvitationToken,
			&u.InvitationExpires, &u.CreatedAt, &u.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Verified = verified != 0
		u.Archived = archived != 0
		u.TOTPEnabled = totpEnabled != 0
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetMagicLink stores the one-time token, the 6-digit code and their expiry.
func (r *Repository) SetMagicLink(userID, token, code string, expires int64) error {
	return r.updateUser(userID, `magic_token = ?, magic_code = ?, magic_expires = ?`, token, code, expires)
}

// ClearMagicLink consumes a magic-link challenge.
func (r *Repository) ClearMagicLink(userID string) error {
	return r.updateUser(userID, `magic_token = NULL, magic_code = NULL, magic_expires = NULL`)
}

// SetTOTP stores a pending or enabled TOTP secret with recovery codes.
func (r *Repository) SetTOTP(userID, secret, recoveryCodes string, enabled bool) error {
	return r.updateUser(userID, `totp_secret = ?, recovery_codes = ?, totp_enabled = ?`,
		nullable(secret), nullable(recoveryCodes), boolToInt(enabled))
}

// SetPassword stores a new password hash.
func (r *Repository) SetPassword(userID, hash string) error {
	return r.updateUser(userID, `password_hash = ?`, hash)
}

// SetRole changes a user's role.
func (r *Repository) SetRole(userID string, role string) error {
	return r.updateUser(userID, `role = ?`, role)
}

// SetArchived soft-deletes or restores a user.
func (r *Repository) SetArchived(userID string, archived bool) error {
	return r.updateUser(userID, `archived = ?`, boolToInt(archived))
}

// ActivateInvited clears the invitation and verifies the user.
func (r *Repository) ActivateInvited(userID string) error {
	return r.updateUser(userID, `invitation_token = NULL, invitation_expires = NULL, verified = 1`)
}

// DeleteUser hard-deletes a user. Reserved for master operations.
func (r *Repository) DeleteUser(userID string) error {
	if _, err := r.db.Exec(`DELETE FROM users WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (r *Repository) updateUser(userID, set string, args ...interface{}) error {
	args = append(args, time.Now().Unix(), userID)
	_, err := r.db.Exec(`UPDATE users SET `+set+`, updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// CreateSession inserts a session row.
func (r *Repository) CreateSession(s *Session) error {
	_, err := r.db.Exec(`
		INSERT INTO sessions (id, user_id, expires_at, device, ip, is_mobile, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.UserID, s.ExpiresAt, nullable(s.Device), nullable(s.IP),
		boolToInt(s.IsMobile), s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession loads a session. Returns nil when missing.
func (r *Repository) GetSession(id string) (*Session, error) {
	row := r.db.QueryRow(`
		SELECT id, user_id, expires_at, COALESCE(device, ''), COALESCE(ip, ''), is_mobile, created_at
		FROM sessions WHERE id = ?
	`, id)

	var s Session
	var isMobile int
	err := row.Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.Device, &s.IP, &isMobile, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	s.IsMobile = isMobile != 0
	return &s, nil
}

// DeleteSession revokes one session.
func (r *Repository) DeleteSession(id string) error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteUserSessions revokes every session of one user.
func (r *Repository) DeleteUserSessions(userID string) error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}

// PurgeExpiredSessions removes sessions past their expiry.
func (r *Repository) PurgeExpiredSessions() (int64, error) {
	res, err := r.db.Exec(`DELETE FROM sessions WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return res.RowsAffected()
}

// CreateTenant inserts a tenant.
func (r *Repository) CreateTenant(t *Tenant) error {
	_, err := r.db.Exec(`
		INSERT INTO tenants (id, name, admin_user_id, retention_days, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.Name, nullable(t.AdminUserID), t.RetentionDays, boolToInt(t.Active), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetTenant loads one tenant. Returns nil when missing.
func (r *Repository) GetTenant(id string) (*Tenant, error) {
	row := r.db.QueryRow(`
		SELECT id, name, COALESCE(admin_user_id, ''), retention_days, active, created_at
		FROM tenants WHERE id = ?
	`, id)

	var t Tenant
	var active int
	err := row.Scan(&t.ID, &t.Name, &t.AdminUserID, &t.RetentionDays, &active, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}
	t.Active = active != 0
	return &t, nil
}

// SetTenantAdmin designates the tenant's single admin user.
func (r *Repository) SetTenantAdmin(tenantID, userID string) error {
	if _, err := r.db.Exec(`UPDATE tenants SET admin_user_id = ? WHERE id = ?`, userID, tenantID); err != nil {
		return fmt.Errorf("failed to set tenant admin: %w", err)
	}
	return nil
}

// DeleteTenant removes a tenant. The admin user goes first, then the
// cascade clears the rest.
func (r *Repository) DeleteTenant(tenantID string) error {
	t, err := r.GetTenant(tenantID)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	if t.AdminUserID != "" {
		if err := r.DeleteUser(t.AdminUserID); err != nil {
			return err
		}
	}
	if _, err := r.db.Exec(`DELETE FROM tenants WHERE id = ?`, tenantID); err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}
