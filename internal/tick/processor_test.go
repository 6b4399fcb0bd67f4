package tick

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/modules/buildings"
	"github.com/skourtis/boomtown/internal/modules/company"
	"github.com/skourtis/boomtown/internal/modules/world"
	"github.com/skourtis/boomtown/internal/rules"
	boomtest "github.com/skourtis/boomtown/internal/testing"
)

type tickTestEnv struct {
	proc      *Processor
	conn      *sql.DB
	companies *company.Repository
}

func newTickEnv(t *testing.T) *tickTestEnv {
	t.Helper()
	db := boomtest.NewTestDB(t, "game")
	conn := db.Conn()
	log := zerolog.Nop()

	companyRepo := company.NewRepository(conn, log)
	worldRepo := world.NewRepository(conn, log)
	buildingRepo := buildings.NewRepository(conn, log)
	rulesRepo := rules.NewRepository(conn, log)
	require.NoError(t, rulesRepo.Seed())
	require.NoError(t, buildingRepo.SeedCatalog())

	return &tickTestEnv{
		proc:      NewProcessor(conn, worldRepo, buildingRepo, companyRepo, rulesRepo, 2, log),
		conn:      conn,
		companies: companyRepo,
	}
}

func (e *tickTestEnv) seedTown(t *testing.T) (*domain.Map, []domain.Tile, *domain.GameCompany) {
	t.Helper()
	m := &domain.Map{Tier: domain.TierTown, Width: 5, Height: 5}
	boomtest.InsertMap(t, e.conn, m)
	tiles := boomtest.InsertGrid(t, e.conn, m)
	c := &domain.GameCompany{Cash: 10_000, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, c)
	return m, tiles, c
}

func (e *tickTestEnv) cash(t *testing.T, companyID string) int64 {
	t.Helper()
	c, err := e.companies.GetByID(companyID)
	require.NoError(t, err)
	return c.Cash
}

func TestTick_Earnings(t *testing.T) {
	e := newTickEnv(t)
	_, tiles, c := e.seedTown(t)
	boomtest.SetTileOwner(t, e.conn, tiles[12].ID, c.ID)
	boomtest.InsertBuilding(t, e.conn, &domain.BuildingInstance{
		TileID: tiles[12].ID, TypeID: "market_stall", CompanyID: c.ID,
		CalculatedProfit: 120, CalculatedValue: 2_000, NeedsProfitRecalc: false,
	})

	require.NoError(t, e.proc.Run())

	// 120 profit less 10% town tax: floor(120 * 0.90)
	assert.Equal(t, int64(10_108), e.cash(t, c.ID))
}

func TestTick_Idempotent(t *testing.T) {
	e := newTickEnv(t)
	m, tiles, c := e.seedTown(t)
	boomtest.SetTileOwner(t, e.conn, tiles[12].ID, c.ID)
	boomtest.InsertBuilding(t, e.conn, &domain.BuildingInstance{
		TileID: tiles[12].ID, TypeID: "market_stall", CompanyID: c.ID,
		CalculatedProfit: 120, NeedsProfitRecalc: false,
	})

	require.NoError(t, e.proc.Run())
	after := e.cash(t, c.ID)

	// Pin the boundary past the next invocation: an already-ticked map
	// cannot be claimed, so nothing pays out twice.
	_, err := e.conn.Exec(`UPDATE map_tick_state SET last_tick_ts = ? WHERE map_id = ?`,
		time.Now().Unix()+3600, m.ID)
	require.NoError(t, err)

	require.NoError(t, e.proc.Run())
	assert.Equal(t, after, e.cash(t, c.ID))
}

func TestTick_RecalculatesDirtyBuildings(t *testing.T) {
	e := newTickEnv(t)
	_, tiles, c := e.seedTown(t)
	boomtest.SetTileOwner(t, e.conn, tiles[12].ID, c.ID)
	b := &domain.BuildingInstance{
		TileID: tiles[12].ID, TypeID: "market_stall", CompanyID: c.ID,
		CalculatedProfit: 0, CalculatedValue: 0, NeedsProfitRecalc: true,
	}
	boomtest.InsertBuilding(t, e.conn, b)

	require.NoError(t, e.proc.Run())

	var profit, value int64
	var dirty int
	require.NoError(t, e.conn.QueryRow(
		`SELECT calculated_profit, calculated_value, needs_profit_recalc
		 FROM building_instances WHERE id = ?`, b.ID).Scan(&profit, &value, &dirty))
	// Isolated stall in a town evaluates to its base numbers
	assert.Equal(t, int64(120), profit)
	assert.Equal(t, int64(2_000), value)
	assert.Zero(t, dirty)
}

func TestTick_DamagedEarningsAndDecay(t *testing.T) {
	e := newTickEnv(t)
	_, tiles, c := e.seedTown(t)
	boomtest.SetTileOwner(t, e.conn, tiles[12].ID, c.ID)
	b := &domain.BuildingInstance{
		TileID: tiles[12].ID, TypeID: "market_stall", CompanyID: c.ID,
		CalculatedProfit: 120, Damage: 50, NeedsProfitRecalc: false,
	}
	boomtest.InsertBuilding(t, e.conn, b)

	require.NoError(t, e.proc.Run())

	// Earnings scale with health: floor(floor(120 * 0.5) * 0.90)
	assert.Equal(t, int64(10_054), e.cash(t, c.ID))

	// Damage decays upward: 50 + ceil(50 * 0.02)
	var damage float64
	require.NoError(t, e.conn.QueryRow(
		`SELECT damage FROM building_instances WHERE id = ?`, b.ID).Scan(&damage))
	assert.Equal(t, 51.0, damage)
}

func TestTick_BurningDecaysToCollapse(t *testing.T) {
	e := newTickEnv(t)
	_, tiles, c := e.seedTown(t)
	boomtest.SetTileOwner(t, e.conn, tiles[12].ID, c.ID)
	b := &domain.BuildingInstance{
		TileID: tiles[12].ID, TypeID: "market_stall", CompanyID: c.ID,
		CalculatedProfit: 120, Damage: 95, Burning: true, Overlay: "fire",
		NeedsProfitRecalc: false,
	}
	boomtest.InsertBuilding(t, e.conn, b)

	// 95 + ceil(95 * 0.08) = 95 + 8 clamps at 100
	require.NoError(t, e.proc.Run())

	var collapsed int
	var damage float64
	require.NoError(t, e.conn.QueryRow(
		`SELECT collapsed, damage FROM building_instances WHERE id = ?`, b.ID).Scan(&collapsed, &damage))
	assert.Equal(t, 1, collapsed)
	assert.Equal(t, 100.0, damage)
}

func TestTick_SecurityUpkeep(t *testing.T) {
	e := newTickEnv(t)
	_, tiles, c := e.seedTown(t)
	boomtest.SetTileOwner(t, e.conn, tiles[12].ID, c.ID)
	b := &domain.BuildingInstance{
		TileID: tiles[12].ID, TypeID: "market_stall", CompanyID: c.ID,
		CalculatedProfit: 120, NeedsProfitRecalc: false,
	}
	boomtest.InsertBuilding(t, e.conn, b)
	_, err := e.conn.Exec(`INSERT INTO building_security
		(id, building_id, level, upkeep, resistance, created_at)
		VALUES ('sec1', ?, 1, 50, 0.25, 0)`, b.ID)
	require.NoError(t, err)

	require.NoError(t, e.proc.Run())

	// Upkeep comes off before tax: floor((120 - 50) * 0.90)
	assert.Equal(t, int64(10_063), e.cash(t, c.ID))
}

func TestTick_StatisticsSnapshot(t *testing.T) {
	e := newTickEnv(t)
	m, tiles, c := e.seedTown(t)
	boomtest.SetTileOwner(t, e.conn, tiles[12].ID, c.ID)
	boomtest.SetTileOwner(t, e.conn, tiles[13].ID, c.ID)
	boomtest.InsertBuilding(t, e.conn, &domain.BuildingInstance{
		TileID: tiles[12].ID, TypeID: "market_stall", CompanyID: c.ID,
		CalculatedProfit: 120, CalculatedValue: 2_000, NeedsProfitRecalc: false,
	})

	require.NoError(t, e.proc.Run())

	stats, err := e.companies.GetStatistics(c.ID, m.ID)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Buildings)
	assert.Equal(t, e.cash(t, c.ID)+2_000, stats.NetWorth)
	assert.InDelta(t, 2.0/25.0, stats.LandPct, 1e-9)
	assert.Equal(t, 120.0, stats.ProfitMean)
}

func TestTick_InactivityFlag(t *testing.T) {
	e := newTickEnv(t)
	_, _, c := e.seedTown(t)
	_, err := e.conn.Exec(`UPDATE game_companies SET ticks_since_action = 143 WHERE id = ?`, c.ID)
	require.NoError(t, err)

	require.NoError(t, e.proc.Run())

	got, err := e.companies.GetByID(c.ID)
	require.NoError(t, err)
	assert.True(t, got.Inactive)
	assert.Equal(t, 144, got.TicksSinceAction)
}
