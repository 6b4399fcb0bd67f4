package authz

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/modules/auth"
)

// Built-in page sets. Master admin and admin have broad built-ins; the
// restrictive roles start from a base set.
var (
	basePages = []string{"dashboard", "game", "profile"}

	adminPages = []string{
		"dashboard", "game", "profile", "users", "roles", "settings", "reports",
	}

	masterAdminOnlyPages = []string{"tenants", "system", "moderation_queue", "rules_editor"}
)

// Service resolves accessible pages and manages custom roles.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new authz service.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "authz").Logger(),
	}
}

// NormalizeRoleName lowercases a role name and strips non-alphanumerics.
func NormalizeRoleName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CreateCustomRole adds a tenant-scoped role. Names must not collide with
// built-ins after normalization.
func (s *Service) CreateCustomRole(tenantID, name string) (*CustomRole, error) {
	name = strings.TrimSpace(name)
	normalized := NormalizeRoleName(name)
	if normalized == "" {
		return nil, domain.E(domain.KindInvalidRequest, "role name must contain letters or digits")
	}
	if auth.IsBuiltin(normalized) {
		return nil, domain.E(domain.KindConflict, "role name collides with a built-in role")
	}

	role := &CustomRole{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		Name:       name,
		Normalized: normalized,
		CreatedAt:  time.Now().Unix(),
	}
	if err := s.repo.CreateCustomRole(role); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, domain.E(domain.KindConflict, "role already exists")
		}
		return nil, err
	}
	return role, nil
}

// DeleteCustomRole removes a custom role. Built-ins cannot be deleted.
func (s *Service) DeleteCustomRole(tenantID, name string) error {
	normalized := NormalizeRoleName(name)
	if auth.IsBuiltin(normalized) {
		return domain.E(domain.KindPreconditionFailed, "built-in roles cannot be deleted")
	}
	return s.repo.DeleteCustomRole(tenantID, normalized)
}

// ListCustomRoles returns a tenant's custom roles.
func (s *Service) ListCustomRoles(tenantID string) ([]CustomRole, error) {
	return s.repo.ListCustomRoles(tenantID)
}

// SetRolePages assigns a page list to a role within a tenant.
func (s *Service) SetRolePages(tenantID, role string, pages []string) error {
	return s.repo.SetRolePages(tenantID, NormalizeRoleName(role), pages)
}

// SetTenantPages sets the master-admin-enabled page list for a tenant.
func (s *Service) SetTenantPages(tenantID string, pages []string) error {
	return s.repo.SetTenantPages(tenantID, pages)
}

// ResolvePages computes the accessible-page set for a user:
// built-ins for the role, union pages both enabled for the tenant and
// assigned to the role, minus master-admin-only pages for everyone else.
func (s *Service) ResolvePages(u *auth.User) ([]string, error) {
	pages := make(map[string]bool)

	switch u.Role {
	case auth.RoleMasterAdmin:
		for _, p := range adminPages {
			pages[p] = true
		}
		for _, p := range masterAdminOnlyPages {
			pages[p] = true
		}
	case auth.RoleAdmin:
		for _, p := range adminPages {
			pages[p] = true
		}
	default:
		for _, p := range basePages {
			pages[p] = true
		}
	}

	if u.TenantID != "" && u.Role != auth.RoleMasterAdmin && u.Role != auth.RoleAdmin {
		enabled, err := s.repo.GetTenantPages(u.TenantID)
		if err != nil {
			return nil, err
		}
		enabledSet := make(map[string]bool, len(enabled))
		for _, p := range enabled {
			enabledSet[p] = true
		}
		assigned, err := s.repo.GetRolePages(u.TenantID, NormalizeRoleName(string(u.Role)))
		if err != nil {
			return nil, err
		}
		for _, p := range assigned {
			if enabledSet[p] {
				pages[p] = true
			}
		}
	}

	if u.Role != auth.RoleMasterAdmin {
		for _, p := range masterAdminOnlyPages {
			delete(pages, p)
		}
	}

	out := make([]string, 0, len(pages))
	for p := range pages {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// CanAccess reports whether a user may open one page.
func (s *Service) CanAccess(u *auth.User, page string) (bool, error) {
	if u.Role == auth.RoleMasterAdmin {
		return true, nil
	}
	pages, err := s.ResolvePages(u)
	if err != nil {
		return false, err
	}
	for _, p := range pages {
		if p == page {
			return true, nil
		}
	}
	return false, nil
}

// GrantPermission records a time-limited capability override. A zero ttl
// means no expiry.
func (s *Service) GrantPermission(userID, permission string, granted bool, ttl time.Duration) error {
	p := &UserPermission{
		ID:         uuid.New().String(),
		UserID:     userID,
		Permission: permission,
		Granted:    granted,
		CreatedAt:  time.Now().Unix(),
	}
	if ttl > 0 {
		p.ExpiresAt = time.Now().Add(ttl).Unix()
	}
	return s.repo.GrantPermission(p)
}

// HasPermission checks capability overrides; the newest unexpired override
// wins. Without an override the answer is false.
func (s *Service) HasPermission(userID, permission string) (bool, error) {
	perms, err := s.repo.ActivePermissions(userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p.Permission == permission {
			return p.Granted, nil
		}
	}
	return false, nil
}
