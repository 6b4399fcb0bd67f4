// Package auth implements identity: credentials, magic links, TOTP,
// invitations, sessions and the signed tokens that carry them.
package auth

// Role is a built-in or custom role name.
type Role string

const (
	RoleMasterAdmin Role = "master_admin"
	RoleAdmin       Role = "admin"
	RoleAnalyst     Role = "analyst"
	RoleViewer      Role = "viewer"
	RoleUser        Role = "user"
)

// BuiltinRoles cannot be deleted or renamed.
func BuiltinRoles() []Role {
	return []Role{RoleMasterAdmin, RoleAdmin, RoleAnalyst, RoleViewer, RoleUser}
}

// IsBuiltin reports whether a role name collides with a built-in.
func IsBuiltin(name string) bool {
	for _, r := range BuiltinRoles() {
		if string(r) == name {
			return true
		}
	}
	return false
}

// User is an identity with credential state.
type User struct {
	ID                string
	Email             string
	Username          string
	PasswordHash      string
	Role              Role
	TenantID          string
	Verified          bool
	Archived          bool
	MagicToken        string
	MagicCode         string
	MagicExpires      int64
	TOTPSecret        string
	TOTPEnabled       bool
	RecoveryCodes     string // JSON array of unused codes
	InvitationToken   string
	InvitationExpires int64
	CreatedAt         int64
	UpdatedAt         int64
}

// Active reports whether the user may authenticate.
func (u *User) Active() bool { return !u.Archived }

// Tenant is the organizational scope for users.
type Tenant struct {
	ID            string
	Name          string
	AdminUserID   string
	RetentionDays int
	Active        bool
	CreatedAt     int64
}

// Session is a bearer credential bound to one user.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt int64
	Device    string
	IP        string
	IsMobile  bool
	CreatedAt int64
}
