package server

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skourtis/boomtown/internal/config"
	"github.com/skourtis/boomtown/internal/modules/auth"
	"github.com/skourtis/boomtown/internal/modules/authz"
	"github.com/skourtis/boomtown/internal/modules/buildings"
	boomtest "github.com/skourtis/boomtown/internal/testing"
)

type serverTestEnv struct {
	srv      *Server
	authSvc  *auth.Service
	authz    *authz.Service
	users    *auth.Repository
	authConn *sql.DB
}

func newServerEnv(t *testing.T) *serverTestEnv {
	t.Helper()
	log := zerolog.Nop()
	authDB := boomtest.NewTestDB(t, "auth")
	gameDB := boomtest.NewTestDB(t, "game")
	socialDB := boomtest.NewTestDB(t, "social")

	userRepo := auth.NewRepository(authDB.Conn(), log)
	tokens := auth.NewTokenManager("test-secret", time.Hour, time.Hour)
	authSvc := auth.NewService(userRepo, tokens, &boomtest.MockSender{}, nil, "https://game.test/magic/", log)
	authzSvc := authz.NewService(authz.NewRepository(authDB.Conn(), log), log)

	buildingRepo := buildings.NewRepository(gameDB.Conn(), log)
	require.NoError(t, buildingRepo.SeedCatalog())

	srv := New(Config{
		Log: log,
		Config: &config.Config{
			DataDir:            t.TempDir(),
			AuthRateLimit:      1000,
			AuthRateWindow:     time.Minute,
			APIRateLimit:       1000,
			AnonymousRateLimit: 1000,
		},
		AuthDB:       authDB,
		GameDB:       gameDB,
		SocialDB:     socialDB,
		AuthService:  authSvc,
		AuthzService: authzSvc,
		BuildingRepo: buildingRepo,
	})

	return &serverTestEnv{
		srv:      srv,
		authSvc:  authSvc,
		authz:    authzSvc,
		users:    userRepo,
		authConn: authDB.Conn(),
	}
}

// loginAs registers a user with the given role and returns a bearer token
// plus the user id.
func (e *serverTestEnv) loginAs(t *testing.T, email string, role auth.Role) (string, string) {
	t.Helper()
	username := strings.SplitN(email, "@", 2)[0]
	u, err := e.authSvc.Register(email, username, "hunter2hunter2")
	require.NoError(t, err)
	if role != auth.RoleUser {
		require.NoError(t, e.users.SetRole(u.ID, string(role)))
	}
	res, err := e.authSvc.Login(email, "hunter2hunter2", "web", "127.0.0.1", "Mozilla/5.0")
	require.NoError(t, err)
	return res.Token, u.ID
}

func (e *serverTestEnv) do(method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.router.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_RequireSession(t *testing.T) {
	e := newServerEnv(t)

	rec := e.do(http.MethodGet, "/api/buildings/types", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodGet, "/api/buildings/types", "garbage-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPageGate_GamePageCoversPlaySurfaces(t *testing.T) {
	e := newServerEnv(t)
	token, _ := e.loginAs(t, "player@example.com", auth.RoleUser)

	rec := e.do(http.MethodGet, "/api/buildings/types", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPageGate_AnalystBlockedWithoutReportsPage(t *testing.T) {
	e := newServerEnv(t)
	token, _ := e.loginAs(t, "analyst@example.com", auth.RoleAnalyst)

	// The role gate admits analysts to /system; the page gate still holds.
	rec := e.do(http.MethodGet, "/api/system/status", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminToken, _ := e.loginAs(t, "admin@example.com", auth.RoleAdmin)
	rec = e.do(http.MethodGet, "/api/system/status", adminToken)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPageGate_TenantAssignmentOpensPage(t *testing.T) {
	e := newServerEnv(t)
	token, userID := e.loginAs(t, "analyst@example.com", auth.RoleAnalyst)

	tenant := &auth.Tenant{ID: "tenant-1", Name: "Northside", Active: true, CreatedAt: time.Now().Unix()}
	require.NoError(t, e.users.CreateTenant(tenant))
	_, err := e.authConn.Exec(`UPDATE users SET tenant_id = ? WHERE id = ?`, tenant.ID, userID)
	require.NoError(t, err)

	rec := e.do(http.MethodGet, "/api/system/status", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Master enables the page for the tenant and the tenant assigns it to
	// the analyst role.
	require.NoError(t, e.authz.SetTenantPages(tenant.ID, []string{"reports"}))
	require.NoError(t, e.authz.SetRolePages(tenant.ID, "analyst", []string{"reports"}))

	rec = e.do(http.MethodGet, "/api/system/status", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPageGate_UserBlockedFromAdminPages(t *testing.T) {
	e := newServerEnv(t)
	token, _ := e.loginAs(t, "player@example.com", auth.RoleUser)

	rec := e.do(http.MethodGet, "/api/admin/users", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
