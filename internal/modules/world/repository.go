// Package world manages maps and tiles: creation, terrain, ownership.
package world

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/domain"
)

// tileInsertChunk bounds the rows per INSERT statement so the statement
// stays under the store's parameter cap.
const tileInsertChunk = 20

// Repository handles map and tile persistence in game.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new world repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "world").Logger(),
	}
}

// CreateMap inserts a map row, its tick-state row, and all tiles in one
// transaction. Map dimensions are immutable after this point.
func (r *Repository) CreateMap(m *domain.Map, tiles []domain.Tile) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin map creation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO maps (id, country, tier, width, height, hero_net_worth, hero_cash,
			hero_land_pct, police_strike_day, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Country, m.Tier, m.Width, m.Height, m.HeroNetWorth, m.HeroCash,
		m.HeroLandPct, m.PoliceStrikeDay, boolToInt(m.Active), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert map: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO map_tick_state (map_id, last_tick_ts) VALUES (?, 0)`, m.ID); err != nil {
		return fmt.Errorf("failed to insert tick state: %w", err)
	}

	// Chunked batch insert: width*height tiles can reach 10,000 rows
	for start := 0; start < len(tiles); start += tileInsertChunk {
		end := start + tileInsertChunk
		if end > len(tiles) {
			end = len(tiles)
		}
		chunk := tiles[start:end]

		placeholders := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*6)
		for _, t := range chunk {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?)")
			args = append(args, t.ID, t.MapID, t.X, t.Y, t.Terrain, nullable(string(t.SpecialBuilding)))
		}

		query := "INSERT INTO tiles (id, map_id, x, y, terrain, special_building) VALUES " +
			strings.Join(placeholders, ", ")
		if _, err := tx.Exec(query, args...); err != nil {
			return fmt.Errorf("failed to insert tile batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit map creation: %w", err)
	}

	r.log.Info().
		Str("map_id", m.ID).
		Str("tier", string(m.Tier)).
		Int("tiles", len(tiles)).
		Msg("Map created")
	return nil
}

// GetMap loads one map by id.
func (r *Repository) GetMap(id string) (*domain.Map, error) {
	row := r.db.QueryRow(`
		SELECT id, country, tier, width, height, hero_net_worth, hero_cash,
			hero_land_pct, police_strike_day, active, created_at
		FROM maps WHERE id = ?
	`, id)
	return scanMap(row)
}

// ListActiveMaps returns every active map, ordered for deterministic tick sweeps.
func (r *Repository) ListActiveMaps() ([]domain.Map, error) {
	rows, err := r.db.Query(`
		SELECT id, country, tier, width, height, hero_net_worth, hero_cash,
			hero_land_pct, police_strike_day, active, created_at
		FROM maps WHERE active = 1 ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list maps: %w", err)
	}
	defer rows.Close()

	var maps []domain.Map
	for rows.Next() {
		m, err := scanMapRows(rows)
		if err != nil {
			return nil, err
		}
		maps = append(maps, *m)
	}
	return maps, rows.Err()
}

// ListMapsByTier returns active maps of one tier.
func (r *Repository) ListMapsByTier(tier domain.Tier) ([]domain.Map, error) {
	rows, err := r.db.Query(`
		SELECT id, country, tier, width, height, hero_net_worth, hero_cash,
			hero_land_pct, police_strike_day, active, created_at
		FROM maps WHERE active = 1 AND tier = ? ORDER BY created_at, id
	`, tier)
	if err != nil {
		return nil, fmt.Errorf("failed to list maps by tier: %w", err)
	}
	defer rows.Close()

	var maps []domain.Map
	for rows.Next() {
		m, err := scanMapRows(rows)
		if err != nil {
			return nil, err
		}
		maps = append(maps, *m)
	}
	return maps, rows.Err()
}

// GetTiles returns the full tile snapshot of a map.
func (r *Repository) GetTiles(mapID string) ([]domain.Tile, error) {
	rows, err := r.db.Query(`
		SELECT id, map_id, x, y, terrain, COALESCE(special_building, ''), COALESCE(owner_company_id, '')
		FROM tiles WHERE map_id = ? ORDER BY y, x
	`, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiles: %w", err)
	}
	defer rows.Close()

	var tiles []domain.Tile
	for rows.Next() {
		var t domain.Tile
		var special, owner string
		if err := rows.Scan(&t.ID, &t.MapID, &t.X, &t.Y, &t.Terrain, &special, &owner); err != nil {
			return nil, fmt.Errorf("failed to scan tile: %w", err)
		}
		t.SpecialBuilding = domain.SpecialBuilding(special)
		t.OwnerCompanyID = owner
		tiles = append(tiles, t)
	}
	return tiles, rows.Err()
}

// GetTilesTx loads the full tile snapshot inside the caller's transaction.
func (r *Repository) GetTilesTx(tx *sql.Tx, mapID string) ([]domain.Tile, error) {
	rows, err := tx.Query(`
		SELECT id, map_id, x, y, terrain, COALESCE(special_building, ''), COALESCE(owner_company_id, '')
		FROM tiles WHERE map_id = ? ORDER BY y, x
	`, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiles: %w", err)
	}
	defer rows.Close()

	var tiles []domain.Tile
	for rows.Next() {
		var t domain.Tile
		var special, owner string
		if err := rows.Scan(&t.ID, &t.MapID, &t.X, &t.Y, &t.Terrain, &special, &owner); err != nil {
			return nil, fmt.Errorf("failed to scan tile: %w", err)
		}
		t.SpecialBuilding = domain.SpecialBuilding(special)
		t.OwnerCompanyID = owner
		tiles = append(tiles, t)
	}
	return tiles, rows.Err()
}

// GetTile loads one tile by map and coordinates. Returns nil when the tile
// does not exist.
func (r *Repository) GetTile(mapID string, x, y int) (*domain.Tile, error) {
	return r.getTileWhere("map_id = ? AND x = ? AND y = ?", mapID, x, y)
}

// GetTileByID loads one tile by id. Returns nil when missing.
func (r *Repository) GetTileByID(id string) (*domain.Tile, error) {
	return r.getTileWhere("id = ?", id)
}

// GetTileByIDTx loads one tile inside the caller's transaction.
func (r *Repository) GetTileByIDTx(tx *sql.Tx, id string) (*domain.Tile, error) {
	row := tx.QueryRow(`
		SELECT id, map_id, x, y, terrain, COALESCE(special_building, ''), COALESCE(owner_company_id, '')
		FROM tiles WHERE id = ?`, id)

	var t domain.Tile
	var special, owner string
	err := row.Scan(&t.ID, &t.MapID, &t.X, &t.Y, &t.Terrain, &special, &owner)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tile: %w", err)
	}
	t.SpecialBuilding = domain.SpecialBuilding(special)
	t.OwnerCompanyID = owner
	return &t, nil
}

// CountUnbuiltOwnedTilesTx enforces the unbuilt-land cap under the buy
// transaction's lock scope.
func (r *Repository) CountUnbuiltOwnedTilesTx(tx *sql.Tx, mapID, companyID string) (int, error) {
	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM tiles t
		WHERE t.map_id = ? AND t.owner_company_id = ?
		AND NOT EXISTS (
			SELECT 1 FROM building_instances b
			WHERE b.tile_id = t.id AND b.collapsed = 0
		)
	`, mapID, companyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unbuilt tiles: %w", err)
	}
	return count, nil
}

func (r *Repository) getTileWhere(where string, args ...interface{}) (*domain.Tile, error) {
	row := r.db.QueryRow(`
		SELECT id, map_id, x, y, terrain, COALESCE(special_building, ''), COALESCE(owner_company_id, '')
		FROM tiles WHERE `+where, args...)

	var t domain.Tile
	var special, owner string
	err := row.Scan(&t.ID, &t.MapID, &t.X, &t.Y, &t.Terrain, &special, &owner)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tile: %w", err)
	}
	t.SpecialBuilding = domain.SpecialBuilding(special)
	t.OwnerCompanyID = owner
	return &t, nil
}

// SetOwnerTx assigns (or clears, with an empty id) a tile's owner inside the
// caller's transaction.
func (r *Repository) SetOwnerTx(tx *sql.Tx, tileID, companyID string) error {
	_, err := tx.Exec(`UPDATE tiles SET owner_company_id = ? WHERE id = ?`, nullable(companyID), tileID)
	if err != nil {
		return fmt.Errorf("failed to set tile owner: %w", err)
	}
	return nil
}

// ReleaseCompanyTilesTx clears ownership of every tile a company holds on a map.
func (r *Repository) ReleaseCompanyTilesTx(tx *sql.Tx, companyID, mapID string) error {
	_, err := tx.Exec(`
		UPDATE tiles SET owner_company_id = NULL
		WHERE owner_company_id = ? AND map_id = ?
	`, companyID, mapID)
	if err != nil {
		return fmt.Errorf("failed to release tiles: %w", err)
	}
	return nil
}

// CountUnbuiltOwnedTiles counts tiles a company owns on a map with no live
// building. Used to enforce the unbuilt-land cap.
func (r *Repository) CountUnbuiltOwnedTiles(mapID, companyID string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM tiles t
		WHERE t.map_id = ? AND t.owner_company_id = ?
		AND NOT EXISTS (
			SELECT 1 FROM building_instances b
			WHERE b.tile_id = t.id AND b.collapsed = 0
		)
	`, mapID, companyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unbuilt tiles: %w", err)
	}
	return count, nil
}

// CountOwnedTiles counts all tiles a company owns on a map.
func (r *Repository) CountOwnedTiles(mapID, companyID string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM tiles WHERE map_id = ? AND owner_company_id = ?
	`, mapID, companyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count owned tiles: %w", err)
	}
	return count, nil
}

func scanMap(row *sql.Row) (*domain.Map, error) {
	var m domain.Map
	var active int
	err := row.Scan(&m.ID, &m.Country, &m.Tier, &m.Width, &m.Height, &m.HeroNetWorth,
		&m.HeroCash, &m.HeroLandPct, &m.PoliceStrikeDay, &active, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan map: %w", err)
	}
	m.Active = active != 0
	return &m, nil
}

func scanMapRows(rows *sql.Rows) (*domain.Map, error) {
	var m domain.Map
	var active int
	err := rows.Scan(&m.ID, &m.Country, &m.Tier, &m.Width, &m.Height, &m.HeroNetWorth,
		&m.HeroCash, &m.HeroLandPct, &m.PoliceStrikeDay, &active, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan map: %w", err)
	}
	m.Active = active != 0
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
