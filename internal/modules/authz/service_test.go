package authz

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/modules/auth"
	boomtest "github.com/skourtis/boomtown/internal/testing"
)

func newAuthzEnv(t *testing.T) (*Service, *Repository) {
	t.Helper()
	db := boomtest.NewTestDB(t, "auth")
	log := zerolog.Nop()
	repo := NewRepository(db.Conn(), log)
	return NewService(repo, log), repo
}

func TestNormalizeRoleName(t *testing.T) {
	assert.Equal(t, "shiftlead", NormalizeRoleName("Shift Lead"))
	assert.Equal(t, "tier2", NormalizeRoleName("Tier-2!"))
	assert.Empty(t, NormalizeRoleName("---"))
}

func TestCreateCustomRole(t *testing.T) {
	svc, _ := newAuthzEnv(t)

	role, err := svc.CreateCustomRole("tenant-1", "Shift Lead")
	require.NoError(t, err)
	assert.Equal(t, "shiftlead", role.Normalized)

	_, err = svc.CreateCustomRole("tenant-1", "shift-lead")
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	// Same name in another tenant is a different role
	_, err = svc.CreateCustomRole("tenant-2", "Shift Lead")
	require.NoError(t, err)
}

func TestCreateCustomRole_BuiltinCollision(t *testing.T) {
	svc, _ := newAuthzEnv(t)

	_, err := svc.CreateCustomRole("tenant-1", "Admin")
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	_, err = svc.CreateCustomRole("tenant-1", "")
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))
}

func TestDeleteCustomRole(t *testing.T) {
	svc, _ := newAuthzEnv(t)

	_, err := svc.CreateCustomRole("tenant-1", "Shift Lead")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteCustomRole("tenant-1", "Shift Lead"))

	roles, err := svc.ListCustomRoles("tenant-1")
	require.NoError(t, err)
	assert.Empty(t, roles)

	err = svc.DeleteCustomRole("tenant-1", "admin")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestResolvePages_Builtins(t *testing.T) {
	svc, _ := newAuthzEnv(t)

	pages, err := svc.ResolvePages(&auth.User{Role: auth.RoleMasterAdmin})
	require.NoError(t, err)
	assert.Contains(t, pages, "tenants")
	assert.Contains(t, pages, "rules_editor")

	pages, err = svc.ResolvePages(&auth.User{Role: auth.RoleAdmin})
	require.NoError(t, err)
	assert.Contains(t, pages, "users")
	assert.NotContains(t, pages, "tenants")

	pages, err = svc.ResolvePages(&auth.User{Role: auth.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, []string{"dashboard", "game", "profile"}, pages)
}

func TestResolvePages_TenantAssignment(t *testing.T) {
	svc, _ := newAuthzEnv(t)
	u := &auth.User{Role: auth.Role("shiftlead"), TenantID: "tenant-1"}

	// Assigned but not tenant-enabled pages stay hidden
	require.NoError(t, svc.SetRolePages("tenant-1", "shiftlead", []string{"reports", "settings"}))
	pages, err := svc.ResolvePages(u)
	require.NoError(t, err)
	assert.NotContains(t, pages, "reports")

	require.NoError(t, svc.SetTenantPages("tenant-1", []string{"reports"}))
	pages, err = svc.ResolvePages(u)
	require.NoError(t, err)
	assert.Contains(t, pages, "reports")
	assert.NotContains(t, pages, "settings")
}

func TestResolvePages_MasterOnlyNeverLeaks(t *testing.T) {
	svc, _ := newAuthzEnv(t)
	u := &auth.User{Role: auth.Role("shiftlead"), TenantID: "tenant-1"}

	require.NoError(t, svc.SetTenantPages("tenant-1", []string{"moderation_queue"}))
	require.NoError(t, svc.SetRolePages("tenant-1", "shiftlead", []string{"moderation_queue"}))

	pages, err := svc.ResolvePages(u)
	require.NoError(t, err)
	assert.NotContains(t, pages, "moderation_queue")
}

func TestCanAccess(t *testing.T) {
	svc, _ := newAuthzEnv(t)

	ok, err := svc.CanAccess(&auth.User{Role: auth.RoleMasterAdmin}, "system")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CanAccess(&auth.User{Role: auth.RoleUser}, "game")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.CanAccess(&auth.User{Role: auth.RoleUser}, "users")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPermissionOverrides(t *testing.T) {
	svc, repo := newAuthzEnv(t)

	ok, err := svc.HasPermission("user-1", "bypass_cooldowns")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.GrantPermission("user-1", "bypass_cooldowns", true, time.Hour))
	ok, err = svc.HasPermission("user-1", "bypass_cooldowns")
	require.NoError(t, err)
	assert.True(t, ok)

	// A later revocation wins over the earlier grant
	require.NoError(t, repo.GrantPermission(&UserPermission{
		ID: "p-revoke", UserID: "user-1", Permission: "bypass_cooldowns",
		Granted: false, CreatedAt: time.Now().Unix() + 60,
	}))
	ok, err = svc.HasPermission("user-1", "bypass_cooldowns")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPermissionExpiry(t *testing.T) {
	svc, repo := newAuthzEnv(t)

	require.NoError(t, repo.GrantPermission(&UserPermission{
		ID: "p-stale", UserID: "user-1", Permission: "bypass_cooldowns",
		Granted: true, ExpiresAt: time.Now().Unix() - 60, CreatedAt: time.Now().Unix() - 3600,
	}))

	ok, err := svc.HasPermission("user-1", "bypass_cooldowns")
	require.NoError(t, err)
	assert.False(t, ok)
}
