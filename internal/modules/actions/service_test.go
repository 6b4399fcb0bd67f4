package actions

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/modules/buildings"
	"github.com/skourtis/boomtown/internal/modules/company"
	"github.com/skourtis/boomtown/internal/modules/ledger"
	"github.com/skourtis/boomtown/internal/modules/market"
	"github.com/skourtis/boomtown/internal/modules/world"
	"github.com/skourtis/boomtown/internal/rules"
	boomtest "github.com/skourtis/boomtown/internal/testing"
)

type actionsTestEnv struct {
	svc       *Service
	conn      *sql.DB
	companies *company.Repository
	worldRepo *world.Repository
	buildings *buildings.Repository
	ledger    *ledger.Repository
	gate      *boomtest.MockGate
}

func newActionsEnv(t *testing.T) *actionsTestEnv {
	t.Helper()
	db := boomtest.NewTestDB(t, "game")
	conn := db.Conn()
	log := zerolog.Nop()

	companyRepo := company.NewRepository(conn, log)
	worldRepo := world.NewRepository(conn, log)
	buildingRepo := buildings.NewRepository(conn, log)
	marketRepo := market.NewRepository(conn, log)
	ledgerRepo := ledger.NewRepository(conn, log)
	rulesRepo := rules.NewRepository(conn, log)
	require.NoError(t, rulesRepo.Seed())
	require.NoError(t, buildingRepo.SeedCatalog())

	gate := boomtest.AllowAll()
	svc := NewService(conn, companyRepo, worldRepo, buildingRepo, marketRepo,
		ledgerRepo, rulesRepo, gate, time.Second, log)

	return &actionsTestEnv{
		svc:       svc,
		conn:      conn,
		companies: companyRepo,
		worldRepo: worldRepo,
		buildings: buildingRepo,
		ledger:    ledgerRepo,
		gate:      gate,
	}
}

// newTown seeds a town map with a full grid and one company on it.
func (e *actionsTestEnv) newTown(t *testing.T, cash int64) (*domain.Map, []domain.Tile, *domain.GameCompany) {
	t.Helper()
	m := &domain.Map{Tier: domain.TierTown, Width: 5, Height: 5}
	boomtest.InsertMap(t, e.conn, m)
	tiles := boomtest.InsertGrid(t, e.conn, m)
	c := &domain.GameCompany{Cash: cash, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, c)
	return m, tiles, c
}

func TestBuyLand(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 50_000)

	res, err := e.svc.BuyLand(c.UserID, c.ID, tiles[0].ID)
	require.NoError(t, err)

	// Town land base cost is 1,000 on free land with no streak discount
	assert.Equal(t, int64(49_000), res.Cash)
	assert.Equal(t, tiles[0].ID, res.TargetID)

	tile, err := e.worldRepo.GetTileByID(tiles[0].ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, tile.OwnerCompanyID)

	got, err := e.companies.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.LandStreak)
	assert.Equal(t, 1, got.TotalActions)

	// Second purchase gets the 1% streak discount: floor(1000 * 0.99)
	res, err = e.svc.BuyLand(c.UserID, c.ID, tiles[1].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(49_000-990), res.Cash)
}

func TestBuyLand_AlreadyOwned(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 50_000)
	rival := &domain.GameCompany{Cash: 1, MapID: c.MapID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, rival)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, rival.ID)

	_, err := e.svc.BuyLand(c.UserID, c.ID, tiles[0].ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestBuyLand_UnownableTerrain(t *testing.T) {
	e := newActionsEnv(t)
	m, _, c := e.newTown(t, 50_000)
	water := &domain.Tile{MapID: m.ID, X: 90, Y: 90, Terrain: domain.TerrainWater}
	boomtest.InsertTile(t, e.conn, water)

	_, err := e.svc.BuyLand(c.UserID, c.ID, water.ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestBuyLand_InsufficientCash(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 500)

	_, err := e.svc.BuyLand(c.UserID, c.ID, tiles[0].ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestBuyLand_UnbuiltCap(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 1_000_000)

	// Ten unbuilt tiles is the ceiling
	for i := 0; i < 10; i++ {
		boomtest.SetTileOwner(t, e.conn, tiles[i].ID, c.ID)
	}
	_, err := e.svc.BuyLand(c.UserID, c.ID, tiles[10].ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestBuyLand_WrongUser(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 50_000)

	_, err := e.svc.BuyLand("someone-else", c.ID, tiles[0].ID)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
}

func TestBuyLand_Imprisoned(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 50_000)
	_, err := e.conn.Exec(`UPDATE game_companies SET in_prison = 1, fine = 500 WHERE id = ?`, c.ID)
	require.NoError(t, err)

	_, err = e.svc.BuyLand(c.UserID, c.ID, tiles[0].ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestBuild(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 50_000)

	_, err := e.svc.BuyLand(c.UserID, c.ID, tiles[12].ID)
	require.NoError(t, err)

	res, err := e.svc.Build(c.UserID, c.ID, tiles[12].ID, "hot_dog_stand", "classic")
	require.NoError(t, err)

	// 50,000 - 1,000 land - 5,000 build
	assert.Equal(t, int64(44_000), res.Cash)
	require.NotEmpty(t, res.TargetID)

	b, err := e.buildings.GetLiveByTile(tiles[12].ID)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "hot_dog_stand", b.TypeID)
	assert.Equal(t, "classic", b.Variant)
	// Isolated stand in a town: base profit with tier multiplier 1.0
	assert.Equal(t, int64(300), b.CalculatedProfit)
	assert.Equal(t, int64(5_000), b.CalculatedValue)
}

func TestBuild_RequiresOwnedTile(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 50_000)

	_, err := e.svc.Build(c.UserID, c.ID, tiles[0].ID, "hot_dog_stand", "classic")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestBuild_InvalidVariant(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 50_000)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, c.ID)

	_, err := e.svc.Build(c.UserID, c.ID, tiles[0].ID, "hot_dog_stand", "sushi")
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))

	// Variant on a variant-less type is also rejected
	_, err = e.svc.Build(c.UserID, c.ID, tiles[0].ID, "market_stall", "classic")
	assert.Equal(t, domain.KindInvalidRequest, domain.KindOf(err))
}

func TestBuild_LevelGate(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 1_000_000)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, c.ID)

	// Motel needs level 4; the company is level 1
	_, err := e.svc.Build(c.UserID, c.ID, tiles[0].ID, "motel", "")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestBuild_LicenseCap(t *testing.T) {
	e := newActionsEnv(t)
	m, tiles, c := e.newTown(t, 2_000_000)
	_, err := e.conn.Exec(`UPDATE game_companies SET level = 7 WHERE id = ?`, c.ID)
	require.NoError(t, err)

	rival := &domain.GameCompany{Cash: 1, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, rival)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, rival.ID)
	boomtest.InsertBuilding(t, e.conn, &domain.BuildingInstance{
		TileID: tiles[0].ID, TypeID: "casino", CompanyID: rival.ID,
	})

	boomtest.SetTileOwner(t, e.conn, tiles[24].ID, c.ID)
	_, err = e.svc.Build(c.UserID, c.ID, tiles[24].ID, "casino", "")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestBuild_TileOccupied(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 50_000)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, c.ID)
	boomtest.InsertBuilding(t, e.conn, &domain.BuildingInstance{
		TileID: tiles[0].ID, TypeID: "market_stall", CompanyID: c.ID,
	})

	_, err := e.svc.Build(c.UserID, c.ID, tiles[0].ID, "market_stall", "")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestBuild_CollapsedBlocksTile(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 50_000)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, c.ID)
	boomtest.InsertBuilding(t, e.conn, &domain.BuildingInstance{
		TileID: tiles[0].ID, TypeID: "market_stall", CompanyID: c.ID,
		Collapsed: true, Damage: 100,
	})

	_, err := e.svc.Build(c.UserID, c.ID, tiles[0].ID, "market_stall", "")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestDemolish_ThenRebuild(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 50_000)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, c.ID)

	res, err := e.svc.Build(c.UserID, c.ID, tiles[0].ID, "market_stall", "")
	require.NoError(t, err)

	_, err = e.svc.Demolish(c.UserID, c.ID, res.TargetID)
	require.NoError(t, err)

	// The demolished marker holds the tile but earns nothing
	b, err := e.buildings.GetLiveByTile(tiles[0].ID)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, domain.BuildingDemolished, b.TypeID)

	// Rebuilding replaces the marker
	res, err = e.svc.Build(c.UserID, c.ID, tiles[0].ID, "market_stall", "")
	require.NoError(t, err)

	b, err = e.buildings.GetLiveByTile(tiles[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "market_stall", b.TypeID)
	assert.Equal(t, res.TargetID, b.ID)
}

func TestSellBuildingToState(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 50_000)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, c.ID)

	res, err := e.svc.Build(c.UserID, c.ID, tiles[0].ID, "market_stall", "")
	require.NoError(t, err)
	cashAfterBuild := res.Cash

	b, err := e.buildings.GetByID(res.TargetID)
	require.NoError(t, err)

	res, err = e.svc.SellBuildingToState(c.UserID, c.ID, b.ID)
	require.NoError(t, err)

	// State pays half the calculated value; the land stays owned
	assert.Equal(t, cashAfterBuild+b.CalculatedValue/2, res.Cash)

	tile, err := e.worldRepo.GetTileByID(tiles[0].ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, tile.OwnerCompanyID)

	marker, err := e.buildings.GetLiveByTile(tiles[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BuildingDemolished, marker.TypeID)
}

func TestSellLandToState(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 50_000)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, c.ID)

	res, err := e.svc.SellLandToState(c.UserID, c.ID, tiles[0].ID)
	require.NoError(t, err)

	// Half of the undiscounted town land cost
	assert.Equal(t, int64(50_500), res.Cash)

	tile, err := e.worldRepo.GetTileByID(tiles[0].ID)
	require.NoError(t, err)
	assert.Empty(t, tile.OwnerCompanyID)
}

func TestMarketListingLifecycle(t *testing.T) {
	e := newActionsEnv(t)
	m, tiles, seller := e.newTown(t, 50_000)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, seller.ID)

	buyer := &domain.GameCompany{Cash: 50_000, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, buyer)

	res, err := e.svc.ListForSale(seller.UserID, seller.ID, tiles[0].ID, 8_000)
	require.NoError(t, err)
	listingID := res.TargetID
	require.NotEmpty(t, listingID)

	// Selling a listed tile to the state is blocked until cancellation
	_, err = e.svc.SellLandToState(seller.UserID, seller.ID, tiles[0].ID)
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))

	// A second listing on the same tile is rejected
	_, err = e.svc.ListForSale(seller.UserID, seller.ID, tiles[0].ID, 9_000)
	assert.Error(t, err)

	res, err = e.svc.BuyListing(buyer.UserID, buyer.ID, listingID, 8_000)
	require.NoError(t, err)
	assert.Equal(t, int64(42_000), res.Cash)

	tile, err := e.worldRepo.GetTileByID(tiles[0].ID)
	require.NoError(t, err)
	assert.Equal(t, buyer.ID, tile.OwnerCompanyID)

	gotSeller, err := e.companies.GetByID(seller.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(58_000), gotSeller.Cash)
}

func TestCancelListing(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 50_000)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, c.ID)

	res, err := e.svc.ListForSale(c.UserID, c.ID, tiles[0].ID, 8_000)
	require.NoError(t, err)

	_, err = e.svc.CancelListing(c.UserID, c.ID, res.TargetID)
	require.NoError(t, err)

	// The tile is free to sell again
	_, err = e.svc.SellLandToState(c.UserID, c.ID, tiles[0].ID)
	require.NoError(t, err)
}

func TestTakeover(t *testing.T) {
	e := newActionsEnv(t)
	m, tiles, c := e.newTown(t, 50_000)

	rival := &domain.GameCompany{Cash: 1, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, rival)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, rival.ID)
	target := &domain.BuildingInstance{
		TileID: tiles[0].ID, TypeID: "market_stall", CompanyID: rival.ID,
		CalculatedValue: 2_000, Damage: 70,
	}
	boomtest.InsertBuilding(t, e.conn, target)

	res, err := e.svc.Takeover(context.Background(), c.UserID, c.ID, target.ID, "")
	require.NoError(t, err)

	// Cost is 75% of current value
	assert.Equal(t, int64(48_500), res.Cash)

	b, err := e.buildings.GetByID(target.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, b.CompanyID)

	tile, err := e.worldRepo.GetTileByID(tiles[0].ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, tile.OwnerCompanyID)
}

func TestTakeover_HealthyActiveOwner(t *testing.T) {
	e := newActionsEnv(t)
	m, tiles, c := e.newTown(t, 50_000)

	rival := &domain.GameCompany{Cash: 1, MapID: m.ID, TierJoined: domain.TierTown}
	boomtest.InsertCompany(t, e.conn, rival)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, rival.ID)
	target := &domain.BuildingInstance{
		TileID: tiles[0].ID, TypeID: "market_stall", CompanyID: rival.ID,
		CalculatedValue: 2_000, Damage: 10,
	}
	boomtest.InsertBuilding(t, e.conn, target)

	_, err := e.svc.Takeover(context.Background(), c.UserID, c.ID, target.ID, "")
	assert.Equal(t, domain.KindPreconditionFailed, domain.KindOf(err))
}

func TestPurchaseSecurity(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 200_000)
	boomtest.SetTileOwner(t, e.conn, tiles[0].ID, c.ID)

	res, err := e.svc.Build(c.UserID, c.ID, tiles[0].ID, "market_stall", "")
	require.NoError(t, err)
	buildingID := res.TargetID

	_, err = e.svc.PurchaseSecurity(c.UserID, c.ID, buildingID, 2)
	require.NoError(t, err)

	sec, err := e.buildings.GetSecurity(buildingID)
	require.NoError(t, err)
	require.NotNil(t, sec)
	assert.Equal(t, 2, sec.Level)
	assert.Greater(t, sec.Resistance, 0.0)

	_, err = e.svc.RemoveSecurity(c.UserID, c.ID, buildingID)
	require.NoError(t, err)

	sec, err = e.buildings.GetSecurity(buildingID)
	require.NoError(t, err)
	assert.Nil(t, sec)
}

func TestLevelUp(t *testing.T) {
	e := newActionsEnv(t)
	_, tiles, c := e.newTown(t, 100_000)

	// One action away from the first threshold (10 total actions)
	_, err := e.conn.Exec(`UPDATE game_companies SET total_actions = 9 WHERE id = ?`, c.ID)
	require.NoError(t, err)

	res, err := e.svc.BuyLand(c.UserID, c.ID, tiles[0].ID)
	require.NoError(t, err)
	assert.True(t, res.LevelUp)
	assert.Equal(t, 2, res.Level)

	got, err := e.companies.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Level)
}
