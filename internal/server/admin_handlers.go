package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/modules/auth"
	"github.com/skourtis/boomtown/internal/rules"
)

// handleInvite handles POST /api/admin/users/invite.
func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Role     string `json:"role"`
		TenantID string `json:"tenant_id,omitempty"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	actor := currentUser(r)
	tenantID := req.TenantID
	// Tenant admins invite into their own tenant only.
	if actor.Role != auth.RoleMasterAdmin {
		tenantID = actor.TenantID
	}
	u, err := s.authService.Invite(actor.ID, req.Email, req.Username, auth.Role(req.Role), tenantID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusCreated, map[string]string{
		"user_id": u.ID,
		"email":   u.Email,
	})
}

// handleListUsers handles GET /api/admin/users.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(r)
	tenantID := r.URL.Query().Get("tenant_id")
	if actor.Role != auth.RoleMasterAdmin {
		tenantID = actor.TenantID
	}
	users, err := s.authService.ListUsers(tenantID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]interface{}{
			"user_id":  u.ID,
			"email":    u.Email,
			"username": u.Username,
			"role":     u.Role,
			"archived": u.Archived,
			"invited":  u.InvitationToken != "",
		})
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"users": out})
}

// handleArchiveUser handles POST /api/admin/users/{userID}/archive.
func (s *Server) handleArchiveUser(w http.ResponseWriter, r *http.Request) {
	if err := s.authService.ArchiveUser(currentUser(r).ID, chi.URLParam(r, "userID")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"status": "archived"})
}

// handleRestoreUser handles POST /api/admin/users/{userID}/restore.
func (s *Server) handleRestoreUser(w http.ResponseWriter, r *http.Request) {
	if err := s.authService.RestoreUser(currentUser(r).ID, chi.URLParam(r, "userID")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"status": "restored"})
}

// handleDeleteUser handles DELETE /api/admin/users/{userID}: the permanent
// master purge.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.authService.PurgeUser(currentUser(r).ID, chi.URLParam(r, "userID")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"status": "purged"})
}

// handleAuditLog handles GET /api/admin/audit.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.audit.List(queryLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// handleListRoles handles GET /api/admin/roles.
func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(r)
	roles, err := s.authzService.ListCustomRoles(actor.TenantID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{
		"builtin": auth.BuiltinRoles,
		"custom":  roles,
	})
}

// handleCreateRole handles POST /api/admin/roles.
func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	role, err := s.authzService.CreateCustomRole(currentUser(r).TenantID, req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.audit.Record(currentUser(r).ID, "role_created", role.Name, "")
	s.writeData(w, http.StatusCreated, role)
}

// handleDeleteRole handles DELETE /api/admin/roles/{role}.
func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	if err := s.authzService.DeleteCustomRole(currentUser(r).TenantID, role); err != nil {
		s.writeError(w, err)
		return
	}
	s.audit.Record(currentUser(r).ID, "role_deleted", role, "")
	s.writeData(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleSetRolePages handles PUT /api/admin/roles/{role}/pages.
func (s *Server) handleSetRolePages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pages []string `json:"pages"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	role := chi.URLParam(r, "role")
	if err := s.authzService.SetRolePages(currentUser(r).TenantID, role, req.Pages); err != nil {
		s.writeError(w, err)
		return
	}
	s.audit.Record(currentUser(r).ID, "role_pages_updated", role, "")
	s.writeData(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleGrantPermission handles POST /api/admin/permissions.
func (s *Server) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string `json:"user_id"`
		Permission string `json:"permission"`
		Granted    bool   `json:"granted"`
		TTLSeconds int64  `json:"ttl_seconds,omitempty"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Permission == "" {
		s.writeError(w, domain.E(domain.KindInvalidRequest, "user_id and permission are required"))
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if err := s.authzService.GrantPermission(req.UserID, req.Permission, req.Granted, ttl); err != nil {
		s.writeError(w, err)
		return
	}
	s.audit.Record(currentUser(r).ID, "permission_granted", req.Permission, req.UserID)
	s.writeData(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// handleCreateTenant handles POST /api/admin/tenants.
func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		AdminEmail    string `json:"admin_email"`
		AdminUsername string `json:"admin_username"`
		RetentionDays int    `json:"retention_days,omitempty"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	t, admin, err := s.authService.CreateTenant(currentUser(r).ID, req.Name, req.AdminEmail, req.AdminUsername, req.RetentionDays)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusCreated, map[string]interface{}{
		"tenant": t,
		"admin": map[string]string{
			"user_id": admin.ID,
			"email":   admin.Email,
		},
	})
}

// handleGetTenant handles GET /api/admin/tenants/{tenantID}.
func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := s.authService.GetTenant(chi.URLParam(r, "tenantID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, t)
}

// handleDeleteTenant handles DELETE /api/admin/tenants/{tenantID}.
func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.authService.DeleteTenant(currentUser(r).ID, chi.URLParam(r, "tenantID")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleSetTenantPages handles PUT /api/admin/tenants/{tenantID}/pages.
func (s *Server) handleSetTenantPages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pages []string `json:"pages"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	tenantID := chi.URLParam(r, "tenantID")
	if err := s.authzService.SetTenantPages(tenantID, req.Pages); err != nil {
		s.writeError(w, err)
		return
	}
	s.audit.Record(currentUser(r).ID, "tenant_pages_updated", tenantID, "")
	s.writeData(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handlePendingAttackMessages handles GET /api/admin/moderation/attacks.
func (s *Server) handlePendingAttackMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.attackService.PendingMessages(queryLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"pending": msgs})
}

// handleReviewAttackMessage handles POST /api/admin/moderation/attacks/{attackID}.
func (s *Server) handleReviewAttackMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Approve bool `json:"approve"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	attackID := chi.URLParam(r, "attackID")
	if err := s.attackService.ApproveMessage(attackID, req.Approve); err != nil {
		s.writeError(w, err)
		return
	}
	s.audit.Record(currentUser(r).ID, "attack_message_reviewed", attackID, "")
	s.writeData(w, http.StatusOK, map[string]string{"status": "reviewed"})
}

// handlePendingChat handles GET /api/admin/moderation/chat.
func (s *Server) handlePendingChat(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.socialService.PendingChat(queryLimit(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{"pending": msgs})
}

// handleReviewChat handles POST /api/admin/moderation/chat/{messageID}.
func (s *Server) handleReviewChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Approve bool `json:"approve"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	messageID := chi.URLParam(r, "messageID")
	if err := s.socialService.ReviewChat(messageID, req.Approve); err != nil {
		s.writeError(w, err)
		return
	}
	s.audit.Record(currentUser(r).ID, "chat_message_reviewed", messageID, "")
	s.writeData(w, http.StatusOK, map[string]string{"status": "reviewed"})
}

// handleGetRules handles GET /api/admin/rules.
func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	rs, err := s.rulesRepo.Get()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeData(w, http.StatusOK, rs)
}

// handleSaveRules handles PUT /api/admin/rules: a full ruleset replacement.
func (s *Server) handleSaveRules(w http.ResponseWriter, r *http.Request) {
	var rs rules.Ruleset
	if !s.decodeJSON(w, r, &rs) {
		return
	}
	if err := s.rulesRepo.Save(&rs); err != nil {
		s.writeError(w, err)
		return
	}
	s.audit.Record(currentUser(r).ID, "rules_updated", "", "")
	s.writeData(w, http.StatusOK, map[string]string{"status": "saved"})
}
