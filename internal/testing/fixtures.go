package testing

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/skourtis/boomtown/internal/domain"
)

// InsertMap writes a map row. Zero-value fields get playable defaults.
func InsertMap(t *testing.T, db *sql.DB, m *domain.Map) {
	t.Helper()
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Country == "" {
		m.Country = "Testland"
	}
	if m.Tier == "" {
		m.Tier = domain.TierTown
	}
	if m.Width == 0 {
		m.Width = 10
	}
	if m.Height == 0 {
		m.Height = 10
	}
	if m.HeroNetWorth == 0 {
		m.HeroNetWorth = 1_000_000
	}
	if m.HeroCash == 0 {
		m.HeroCash = 500_000
	}
	if m.HeroLandPct == 0 {
		m.HeroLandPct = 0.20
	}
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().Unix()
	}
	_, err := db.Exec(`INSERT INTO maps
		(id, country, tier, width, height, hero_net_worth, hero_cash, hero_land_pct, police_strike_day, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		m.ID, m.Country, m.Tier, m.Width, m.Height,
		m.HeroNetWorth, m.HeroCash, m.HeroLandPct, m.PoliceStrikeDay, m.CreatedAt)
	if err != nil {
		t.Fatalf("Failed to insert map fixture: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO map_tick_state (map_id, last_tick_ts) VALUES (?, 0)`, m.ID); err != nil {
		t.Fatalf("Failed to insert tick state for map fixture: %v", err)
	}
}

// InsertGrid fills a map with free-land tiles and returns them in row-major
// order. Tile IDs are deterministic: "<mapID>:<x>:<y>".
func InsertGrid(t *testing.T, db *sql.DB, m *domain.Map) []domain.Tile {
	t.Helper()
	tiles := make([]domain.Tile, 0, m.Width*m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			tile := domain.Tile{
				ID:      fmt.Sprintf("%s:%d:%d", m.ID, x, y),
				MapID:   m.ID,
				X:       x,
				Y:       y,
				Terrain: domain.TerrainFreeLand,
			}
			InsertTile(t, db, &tile)
			tiles = append(tiles, tile)
		}
	}
	return tiles
}

// InsertTile writes a tile row.
func InsertTile(t *testing.T, db *sql.DB, tile *domain.Tile) {
	t.Helper()
	if tile.ID == "" {
		tile.ID = uuid.New().String()
	}
	if tile.Terrain == "" {
		tile.Terrain = domain.TerrainFreeLand
	}
	_, err := db.Exec(`INSERT INTO tiles
		(id, map_id, x, y, terrain, special_building, owner_company_id)
		VALUES (?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))`,
		tile.ID, tile.MapID, tile.X, tile.Y, tile.Terrain,
		string(tile.SpecialBuilding), tile.OwnerCompanyID)
	if err != nil {
		t.Fatalf("Failed to insert tile fixture: %v", err)
	}
}

// SetTileOwner updates a tile's owner in place.
func SetTileOwner(t *testing.T, db *sql.DB, tileID, companyID string) {
	t.Helper()
	if _, err := db.Exec(`UPDATE tiles SET owner_company_id = NULLIF(?, '') WHERE id = ?`,
		companyID, tileID); err != nil {
		t.Fatalf("Failed to set tile owner: %v", err)
	}
}

// InsertCompany writes a game company row. Defaults: level 1, on no map.
func InsertCompany(t *testing.T, db *sql.DB, c *domain.GameCompany) {
	t.Helper()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.UserID == "" {
		c.UserID = uuid.New().String()
	}
	if c.Name == "" {
		c.Name = "Acme Corp"
	}
	if c.BossName == "" {
		c.BossName = "Boss"
	}
	if c.Level == 0 {
		c.Level = 1
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().Unix()
	}
	_, err := db.Exec(`INSERT INTO game_companies
		(id, user_id, name, boss_name, cash, offshore, level, total_actions,
		 ticks_since_action, in_prison, fine, land_streak, map_id, tier_joined, inactive, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)`,
		c.ID, c.UserID, c.Name, c.BossName, c.Cash, c.Offshore, c.Level,
		c.TotalActions, c.TicksSinceAction, boolToInt(c.InPrison), c.Fine,
		c.LandStreak, c.MapID, string(c.TierJoined), boolToInt(c.Inactive), c.CreatedAt)
	if err != nil {
		t.Fatalf("Failed to insert company fixture: %v", err)
	}
}

// InsertBuildingType writes a catalog row.
func InsertBuildingType(t *testing.T, db *sql.DB, bt *domain.BuildingType) {
	t.Helper()
	if bt.Name == "" {
		bt.Name = bt.ID
	}
	if bt.LevelRequired == 0 {
		bt.LevelRequired = 1
	}
	if bt.VisualClass == "" {
		bt.VisualClass = "small"
	}
	var maxPerMap interface{}
	if bt.MaxPerMap > 0 {
		maxPerMap = bt.MaxPerMap
	}
	_, err := db.Exec(`INSERT INTO building_types
		(id, name, base_cost, base_profit, level_required, variants, max_per_map, visual_class, visual_only)
		VALUES (?, ?, ?, ?, ?, NULL, ?, ?, ?)`,
		bt.ID, bt.Name, bt.BaseCost, bt.BaseProfit, bt.LevelRequired,
		maxPerMap, bt.VisualClass, boolToInt(bt.VisualOnly))
	if err != nil {
		t.Fatalf("Failed to insert building type fixture: %v", err)
	}
}

// InsertBuilding writes a building instance row.
func InsertBuilding(t *testing.T, db *sql.DB, b *domain.BuildingInstance) {
	t.Helper()
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt == 0 {
		b.CreatedAt = time.Now().Unix()
	}
	_, err := db.Exec(`INSERT INTO building_instances
		(id, tile_id, type_id, company_id, variant, calculated_profit, calculated_value,
		 breakdown, damage, collapsed, burning, overlay, repairing, needs_profit_recalc,
		 last_tick_applied, created_at)
		VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?, NULLIF(?, ''), ?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?)`,
		b.ID, b.TileID, b.TypeID, b.CompanyID, b.Variant,
		b.CalculatedProfit, b.CalculatedValue, b.Breakdown, b.Damage,
		boolToInt(b.Collapsed), boolToInt(b.Burning), b.Overlay,
		boolToInt(b.Repairing), boolToInt(b.NeedsProfitRecalc),
		b.LastTickApplied, b.CreatedAt)
	if err != nil {
		t.Fatalf("Failed to insert building fixture: %v", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
