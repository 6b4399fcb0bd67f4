package company

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/moderation"
	"github.com/skourtis/boomtown/internal/modules/buildings"
	"github.com/skourtis/boomtown/internal/modules/ledger"
	"github.com/skourtis/boomtown/internal/modules/world"
	"github.com/skourtis/boomtown/internal/rules"
	boomtest "github.com/skourtis/boomtown/internal/testing"
)

type companyTestEnv struct {
	svc  *Service
	conn *sql.DB
	repo *Repository
	gate *boomtest.MockGate
}

func newCompanyEnv(t *testing.T) *companyTestEnv {
	t.Helper()
	db := boomtest.NewTestDB(t, "game")
	conn := db.Conn()
	log := zerolog.Nop()

	repo := NewRepository(conn, log)
	worldRepo := world.NewRepository(conn, log)
	buildingRepo := buildings.NewRepository(conn, log)
	ledgerRepo := ledger.NewRepository(conn, log)
	rulesRepo := rules.NewRepository(conn, log)
	require.NoError(t, rulesRepo.Seed())
	require.NoError(t, buildingRepo.SeedCatalog())

	gate := boomtest.AllowAll()
	starting := StartingCash{
		domain.TierTown:    50_000,
		domain.TierCity:    150_000,
		domain.TierCapital: 400_000,
	}
	svc := NewService(conn, repo, worldRepo, buildingRepo, ledgerRepo, rulesRepo,
		gate, starting, log)
	return &companyTestEnv{svc: svc, conn: conn, repo: repo, gate: gate}
}

func TestCreate(t *testing.T) {
	e := newCompanyEnv(t)

	c, err := e.svc.Create(context.Background(), "user-1", "Grit & Mortar", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "Grit & Mortar", c.Name)
	assert.Equal(t, "Ada", c.BossName)
	assert.Equal(t, 1, c.Level)
	assert.Empty(t, c.MapID)
}

func TestCreate_Validation(t *testing.T) {
	e := newCompanyEnv(t)

	_, err := e.svc.Create(context.Background(), "user-1", "   ", "Ada")
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))

	_, err = e.svc.Create(context.Background(), "user-1",
		"This Company Name Is Way Too Long To Be Allowed", "Ada")
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))
}

func TestCreate_DuplicateName(t *testing.T) {
	e := newCompanyEnv(t)

	_, err := e.svc.Create(context.Background(), "user-1", "Grit & Mortar", "Ada")
	require.NoError(t, err)

	_, err = e.svc.Create(context.Background(), "user-2", "Grit & Mortar", "Bea")
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestCreate_PerUserCap(t *testing.T) {
	e := newCompanyEnv(t)

	for _, name := range []string{"First Co", "Second Co", "Third Co"} {
		_, err := e.svc.Create(context.Background(), "user-1", name, "Ada")
		require.NoError(t, err)
	}

	_, err := e.svc.Create(context.Background(), "user-1", "Fourth Co", "Ada")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestCreate_ModerationRejects(t *testing.T) {
	e := newCompanyEnv(t)
	e.gate.Verdict = moderation.VerdictRejected

	_, err := e.svc.Create(context.Background(), "user-1", "Sweary Holdings", "Ada")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestCreate_ModerationUnavailable(t *testing.T) {
	e := newCompanyEnv(t)
	e.gate.Verdict = moderation.VerdictPending

	_, err := e.svc.Create(context.Background(), "user-1", "Pending Partners", "Ada")
	assert.Equal(t, domain.KindUpstreamUnavailable, domain.KindOf(err))
}

func TestJoinMap(t *testing.T) {
	e := newCompanyEnv(t)
	m := &domain.Map{Tier: domain.TierTown, Width: 5, Height: 5}
	boomtest.InsertMap(t, e.conn, m)
	c := &domain.GameCompany{UserID: "user-1"}
	boomtest.InsertCompany(t, e.conn, c)

	joined, err := e.svc.JoinMap("user-1", c.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, joined.MapID)
	assert.Equal(t, domain.TierTown, joined.TierJoined)
	assert.Equal(t, int64(50_000), joined.Cash)

	// Joining opens the statistics snapshot so the map list shows the
	// newcomer before the first tick.
	stats, err := e.repo.GetStatistics(c.ID, m.ID)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, int64(50_000), stats.NetWorth)
}

func TestJoinMap_AlreadyOnMap(t *testing.T) {
	e := newCompanyEnv(t)
	m := &domain.Map{Tier: domain.TierTown, Width: 5, Height: 5}
	boomtest.InsertMap(t, e.conn, m)
	c := &domain.GameCompany{UserID: "user-1", MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, c)

	_, err := e.svc.JoinMap("user-1", c.ID, m.ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestJoinMap_TierLocked(t *testing.T) {
	e := newCompanyEnv(t)
	m := &domain.Map{Tier: domain.TierCity, Width: 5, Height: 5}
	boomtest.InsertMap(t, e.conn, m)
	c := &domain.GameCompany{UserID: "user-1"}
	boomtest.InsertCompany(t, e.conn, c)

	_, err := e.svc.JoinMap("user-1", c.ID, m.ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))

	// The unlock earned by heroing out of a town opens city maps
	_, err = e.conn.Exec(`INSERT INTO tier_unlocks (company_id, tier, created_at) VALUES (?, ?, 0)`,
		c.ID, domain.TierCity)
	require.NoError(t, err)

	joined, err := e.svc.JoinMap("user-1", c.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(150_000), joined.Cash)
}

func TestJoinMap_Imprisoned(t *testing.T) {
	e := newCompanyEnv(t)
	m := &domain.Map{Tier: domain.TierTown, Width: 5, Height: 5}
	boomtest.InsertMap(t, e.conn, m)
	c := &domain.GameCompany{UserID: "user-1", InPrison: true, Fine: 1_000}
	boomtest.InsertCompany(t, e.conn, c)

	_, err := e.svc.JoinMap("user-1", c.ID, m.ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestLeaveMap(t *testing.T) {
	e := newCompanyEnv(t)
	m := &domain.Map{Tier: domain.TierTown, Width: 5, Height: 5}
	boomtest.InsertMap(t, e.conn, m)
	tiles := boomtest.InsertGrid(t, e.conn, m)
	c := &domain.GameCompany{UserID: "user-1", Cash: 30_000, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, c)
	boomtest.SetTileOwner(t, e.conn, tiles[12].ID, c.ID)
	boomtest.InsertBuilding(t, e.conn, &domain.BuildingInstance{
		TileID: tiles[12].ID, TypeID: "market_stall", CompanyID: c.ID,
	})

	require.NoError(t, e.svc.LeaveMap("user-1", c.ID))

	got, err := e.repo.GetByID(c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.MapID)
	assert.Zero(t, got.Cash)

	var owned, standing int
	require.NoError(t, e.conn.QueryRow(
		`SELECT COUNT(*) FROM tiles WHERE owner_company_id = ?`, c.ID).Scan(&owned))
	require.NoError(t, e.conn.QueryRow(
		`SELECT COUNT(*) FROM building_instances WHERE company_id = ?`, c.ID).Scan(&standing))
	assert.Zero(t, owned)
	assert.Zero(t, standing)
}

func TestHeroOut(t *testing.T) {
	e := newCompanyEnv(t)
	m := &domain.Map{Tier: domain.TierTown, Width: 5, Height: 5,
		HeroNetWorth: 10_000, HeroCash: 5_000, HeroLandPct: 0.04}
	boomtest.InsertMap(t, e.conn, m)
	tiles := boomtest.InsertGrid(t, e.conn, m)
	c := &domain.GameCompany{UserID: "user-1", Cash: 10_000, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, c)
	boomtest.SetTileOwner(t, e.conn, tiles[12].ID, c.ID)

	result, err := e.svc.HeroOut("user-1", c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TierCity, result.UnlockedTier)
	assert.Equal(t, int64(10_000), result.NetWorth)

	unlocked, err := e.repo.HasTierUnlock(c.ID, domain.TierCity)
	require.NoError(t, err)
	assert.True(t, unlocked)

	// Heroing out detaches the company like a leave: cash forfeited,
	// holdings gone.
	got, err := e.repo.GetByID(c.ID)
	require.NoError(t, err)
	assert.Empty(t, got.MapID)
	assert.Zero(t, got.Cash)
}

func TestHeroOut_ThresholdsNotMet(t *testing.T) {
	e := newCompanyEnv(t)
	m := &domain.Map{Tier: domain.TierTown, Width: 5, Height: 5,
		HeroNetWorth: 1_000_000, HeroCash: 500_000, HeroLandPct: 0.20}
	boomtest.InsertMap(t, e.conn, m)
	boomtest.InsertGrid(t, e.conn, m)
	c := &domain.GameCompany{UserID: "user-1", Cash: 10_000, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, c)

	_, err := e.svc.HeroOut("user-1", c.ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestHeroOut_InactiveCompany(t *testing.T) {
	e := newCompanyEnv(t)
	m := &domain.Map{Tier: domain.TierTown, Width: 5, Height: 5,
		HeroNetWorth: 1, HeroCash: 1, HeroLandPct: 0.01}
	boomtest.InsertMap(t, e.conn, m)
	boomtest.InsertGrid(t, e.conn, m)
	c := &domain.GameCompany{UserID: "user-1", Cash: 10_000, MapID: m.ID,
		TierJoined: domain.TierTown, Inactive: true}
	boomtest.InsertCompany(t, e.conn, c)

	_, err := e.svc.HeroOut("user-1", c.ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestPayFine(t *testing.T) {
	e := newCompanyEnv(t)
	c := &domain.GameCompany{UserID: "user-1", Cash: 5_000, InPrison: true, Fine: 1_000}
	boomtest.InsertCompany(t, e.conn, c)

	require.NoError(t, e.svc.PayFine("user-1", c.ID))

	got, err := e.repo.GetByID(c.ID)
	require.NoError(t, err)
	assert.False(t, got.InPrison)
	assert.Zero(t, got.Fine)
	assert.Equal(t, int64(4_000), got.Cash)
}

func TestPayFine_NotImprisoned(t *testing.T) {
	e := newCompanyEnv(t)
	c := &domain.GameCompany{UserID: "user-1", Cash: 5_000}
	boomtest.InsertCompany(t, e.conn, c)

	err := e.svc.PayFine("user-1", c.ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestPayFine_InsufficientCash(t *testing.T) {
	e := newCompanyEnv(t)
	c := &domain.GameCompany{UserID: "user-1", Cash: 500, InPrison: true, Fine: 1_000}
	boomtest.InsertCompany(t, e.conn, c)

	err := e.svc.PayFine("user-1", c.ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestGet_WrongUser(t *testing.T) {
	e := newCompanyEnv(t)
	c := &domain.GameCompany{UserID: "user-1"}
	boomtest.InsertCompany(t, e.conn, c)

	_, err := e.svc.Get("user-2", c.ID)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	_, err = e.svc.Get("user-1", "missing")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}
