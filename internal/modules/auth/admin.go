package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skourtis/boomtown/internal/domain"
)

// Administrative operations on users and tenants. Every mutation lands in
// the audit log.

// ListUsers returns a tenant's users.
func (s *Service) ListUsers(tenantID string) ([]User, error) {
	return s.repo.ListUsersByTenant(tenantID)
}

// ArchiveUser deactivates a user and revokes their sessions.
func (s *Service) ArchiveUser(actorUserID, userID string) error {
	u, err := s.repo.GetUserByID(userID)
	if err != nil {
		return err
	}
	if u == nil {
		return domain.E(domain.KindNotFound, "user not found")
	}
	if err := s.repo.SetArchived(userID, true); err != nil {
		return err
	}
	if err := s.repo.DeleteUserSessions(userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Session revocation failed on archive")
	}
	s.recordAudit(actorUserID, "user_archived", u.Email, "")
	return nil
}

// RestoreUser reactivates an archived user.
func (s *Service) RestoreUser(actorUserID, userID string) error {
	u, err := s.repo.GetUserByID(userID)
	if err != nil {
		return err
	}
	if u == nil {
		return domain.E(domain.KindNotFound, "user not found")
	}
	if err := s.repo.SetArchived(userID, false); err != nil {
		return err
	}
	s.recordAudit(actorUserID, "user_restored", u.Email, "")
	return nil
}

// PurgeUser permanently removes a user and their sessions. The audit display
// rows keep the denormalized actor data, so history survives the purge.
func (s *Service) PurgeUser(actorUserID, userID string) error {
	u, err := s.repo.GetUserByID(userID)
	if err != nil {
		return err
	}
	if u == nil {
		return domain.E(domain.KindNotFound, "user not found")
	}
	if err := s.repo.DeleteUserSessions(userID); err != nil {
		return err
	}
	if err := s.repo.DeleteUser(userID); err != nil {
		return err
	}
	s.recordAudit(actorUserID, "user_purged", u.Email, "")
	return nil
}

// CreateTenant creates a tenant together with its designated admin user,
// who receives an invitation email.
func (s *Service) CreateTenant(actorUserID, name, adminEmail, adminUsername string, retentionDays int) (*Tenant, *User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, domain.E(domain.KindInvalidRequest, "tenant name must not be empty")
	}
	if retentionDays <= 0 {
		retentionDays = 365
	}

	t := &Tenant{
		ID:            uuid.New().String(),
		Name:          name,
		RetentionDays: retentionDays,
		Active:        true,
		CreatedAt:     time.Now().Unix(),
	}
	if err := s.repo.CreateTenant(t); err != nil {
		return nil, nil, err
	}

	admin, err := s.Invite(actorUserID, adminEmail, adminUsername, RoleAdmin, t.ID)
	if err != nil {
		// Roll the tenant back; a tenant without its admin is unusable.
		if delErr := s.repo.DeleteTenant(t.ID); delErr != nil {
			s.log.Error().Err(delErr).Str("tenant_id", t.ID).Msg("Orphan tenant cleanup failed")
		}
		return nil, nil, fmt.Errorf("failed to invite tenant admin: %w", err)
	}
	if err := s.repo.SetTenantAdmin(t.ID, admin.ID); err != nil {
		return nil, nil, err
	}
	t.AdminUserID = admin.ID

	s.recordAudit(actorUserID, "tenant_created", name, "")
	return t, admin, nil
}

// GetTenant returns one tenant.
func (s *Service) GetTenant(id string) (*Tenant, error) {
	t, err := s.repo.GetTenant(id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.E(domain.KindNotFound, "tenant not found")
	}
	return t, nil
}

// DeleteTenant removes a tenant. The designated admin user goes first, then
// the tenant row.
func (s *Service) DeleteTenant(actorUserID, tenantID string) error {
	t, err := s.GetTenant(tenantID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTenant(tenantID); err != nil {
		return err
	}
	s.recordAudit(actorUserID, "tenant_deleted", t.Name, "")
	return nil
}
