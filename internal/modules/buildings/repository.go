// Package buildings manages the static building catalog and built instances.
package buildings

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/engine"
)

// Repository handles building types, instances and security rows in game.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new buildings repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "buildings").Logger(),
	}
}

// SeedCatalog inserts the shipped building types if the catalog is empty.
func (r *Repository) SeedCatalog() error {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM building_types").Scan(&count); err != nil {
		return fmt.Errorf("failed to check catalog: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, t := range defaultCatalog() {
		variants, err := json.Marshal(t.Variants)
		if err != nil {
			return fmt.Errorf("failed to encode variants: %w", err)
		}
		_, err = r.db.Exec(`
			INSERT INTO building_types (id, name, base_cost, base_profit, level_required,
				variants, max_per_map, visual_class, visual_only)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.Name, t.BaseCost, t.BaseProfit, t.LevelRequired,
			string(variants), t.MaxPerMap, t.VisualClass, boolToInt(t.VisualOnly))
		if err != nil {
			return fmt.Errorf("failed to seed building type %s: %w", t.ID, err)
		}
	}
	r.log.Info().Msg("Building catalog seeded")
	return nil
}

// GetTypes returns the full catalog keyed by type id.
func (r *Repository) GetTypes() (map[string]domain.BuildingType, error) {
	rows, err := r.db.Query(`
		SELECT id, name, base_cost, base_profit, level_required,
			COALESCE(variants, '[]'), COALESCE(max_per_map, 0), visual_class, visual_only
		FROM building_types
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	defer rows.Close()

	types := make(map[string]domain.BuildingType)
	for rows.Next() {
		var t domain.BuildingType
		var variants string
		var visualOnly int
		if err := rows.Scan(&t.ID, &t.Name, &t.BaseCost, &t.BaseProfit, &t.LevelRequired,
			&variants, &t.MaxPerMap, &t.VisualClass, &visualOnly); err != nil {
			return nil, fmt.Errorf("failed to scan building type: %w", err)
		}
		if err := json.Unmarshal([]byte(variants), &t.Variants); err != nil {
			return nil, fmt.Errorf("failed to decode variants for %s: %w", t.ID, err)
		}
		t.VisualOnly = visualOnly != 0
		types[t.ID] = t
	}
	return types, rows.Err()
}

// GetType loads one catalog entry. Returns nil when missing.
func (r *Repository) GetType(id string) (*domain.BuildingType, error) {
	row := r.db.QueryRow(`
		SELECT id, name, base_cost, base_profit, level_required,
			COALESCE(variants, '[]'), COALESCE(max_per_map, 0), visual_class, visual_only
		FROM building_types WHERE id = ?
	`, id)

	var t domain.BuildingType
	var variants string
	var visualOnly int
	err := row.Scan(&t.ID, &t.Name, &t.BaseCost, &t.BaseProfit, &t.LevelRequired,
		&variants, &t.MaxPerMap, &t.VisualClass, &visualOnly)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load building type: %w", err)
	}
	if err := json.Unmarshal([]byte(variants), &t.Variants); err != nil {
		return nil, fmt.Errorf("failed to decode variants: %w", err)
	}
	t.VisualOnly = visualOnly != 0
	return &t, nil
}

const instanceColumns = `id, tile_id, type_id, COALESCE(company_id, ''), COALESCE(variant, ''),
	calculated_profit, calculated_value, COALESCE(breakdown, ''), damage, collapsed, burning,
	COALESCE(overlay, ''), repairing, needs_profit_recalc, last_tick_applied, created_at`

// GetLiveByTile returns the non-collapsed building on a tile, or nil.
func (r *Repository) GetLiveByTile(tileID string) (*domain.BuildingInstance, error) {
	row := r.db.QueryRow(
		`SELECT `+instanceColumns+` FROM building_instances WHERE tile_id = ? AND collapsed = 0`,
		tileID)
	return scanInstanceRow(row)
}

// GetLiveByTileTx is GetLiveByTile inside the caller's transaction, so
// preconditions hold under the same lock scope as the mutation.
func (r *Repository) GetLiveByTileTx(tx *sql.Tx, tileID string) (*domain.BuildingInstance, error) {
	row := tx.QueryRow(
		`SELECT `+instanceColumns+` FROM building_instances WHERE tile_id = ? AND collapsed = 0`,
		tileID)
	return scanInstanceRow(row)
}

// GetAnyByTileTx returns the newest instance on a tile regardless of
// collapse state. Collapsed buildings still block construction.
func (r *Repository) GetAnyByTileTx(tx *sql.Tx, tileID string) (*domain.BuildingInstance, error) {
	row := tx.QueryRow(
		`SELECT `+instanceColumns+` FROM building_instances WHERE tile_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		tileID)
	return scanInstanceRow(row)
}

// GetByID loads one instance. Returns nil when missing.
func (r *Repository) GetByID(id string) (*domain.BuildingInstance, error) {
	row := r.db.QueryRow(`SELECT `+instanceColumns+` FROM building_instances WHERE id = ?`, id)
	return scanInstanceRow(row)
}

// GetByIDTx loads one instance inside the caller's transaction.
func (r *Repository) GetByIDTx(tx *sql.Tx, id string) (*domain.BuildingInstance, error) {
	row := tx.QueryRow(`SELECT `+instanceColumns+` FROM building_instances WHERE id = ?`, id)
	return scanInstanceRow(row)
}

// ListByMap returns every non-collapsed instance on a map.
func (r *Repository) ListByMap(mapID string) ([]domain.BuildingInstance, error) {
	rows, err := r.db.Query(`
		SELECT `+instanceColumnsPrefixed("b")+`
		FROM building_instances b
		JOIN tiles t ON t.id = b.tile_id
		WHERE t.map_id = ? AND b.collapsed = 0
		ORDER BY b.created_at, b.id
	`, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to list buildings: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

// ListByMapTx loads the map's instances inside the tick transaction,
// including collapsed ones so the tick can stamp them.
func (r *Repository) ListByMapTx(tx *sql.Tx, mapID string) ([]domain.BuildingInstance, error) {
	rows, err := tx.Query(`
		SELECT `+instanceColumnsPrefixed("b")+`
		FROM building_instances b
		JOIN tiles t ON t.id = b.tile_id
		WHERE t.map_id = ?
		ORDER BY b.created_at, b.id
	`, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to list buildings: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

// ListSecurityByMapTx returns security rows for a map keyed by building id.
func (r *Repository) ListSecurityByMapTx(tx *sql.Tx, mapID string) (map[string]domain.BuildingSecurity, error) {
	rows, err := tx.Query(`
		SELECT s.id, s.building_id, s.level, s.upkeep, s.resistance, s.created_at
		FROM building_security s
		JOIN building_instances b ON b.id = s.building_id
		JOIN tiles t ON t.id = b.tile_id
		WHERE t.map_id = ?
	`, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to list security: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.BuildingSecurity)
	for rows.Next() {
		var s domain.BuildingSecurity
		if err := rows.Scan(&s.ID, &s.BuildingID, &s.Level, &s.Upkeep, &s.Resistance, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		out[s.BuildingID] = s
	}
	return out, rows.Err()
}

// ListByCompany returns a company's non-collapsed buildings.
func (r *Repository) ListByCompany(companyID string) ([]domain.BuildingInstance, error) {
	rows, err := r.db.Query(
		`SELECT `+instanceColumns+` FROM building_instances WHERE company_id = ? AND collapsed = 0 ORDER BY created_at, id`,
		companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list company buildings: %w", err)
	}
	defer rows.Close()
	return scanInstances(rows)
}

// CountLicensedOnMapTx enforces the license cap under the Build transaction's
// lock scope.
func (r *Repository) CountLicensedOnMapTx(tx *sql.Tx, mapID, typeID string) (int, error) {
	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM building_instances b
		JOIN tiles t ON t.id = b.tile_id
		WHERE t.map_id = ? AND b.type_id = ? AND b.collapsed = 0
	`, mapID, typeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count licensed buildings: %w", err)
	}
	return count, nil
}

// CountLicensedOnMap counts non-collapsed instances of a licensed type on a map.
func (r *Repository) CountLicensedOnMap(mapID, typeID string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM building_instances b
		JOIN tiles t ON t.id = b.tile_id
		WHERE t.map_id = ? AND b.type_id = ? AND b.collapsed = 0
	`, mapID, typeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count licensed buildings: %w", err)
	}
	return count, nil
}

// InsertTx creates an instance inside the caller's transaction. The partial
// unique index on live tiles rejects a second live building on the same tile.
func (r *Repository) InsertTx(tx *sql.Tx, b *domain.BuildingInstance) error {
	_, err := tx.Exec(`
		INSERT INTO building_instances (id, tile_id, type_id, company_id, variant,
			calculated_profit, calculated_value, breakdown, damage, collapsed, burning,
			overlay, repairing, needs_profit_recalc, last_tick_applied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.TileID, b.TypeID, nullable(b.CompanyID), nullable(b.Variant),
		b.CalculatedProfit, b.CalculatedValue, nullable(b.Breakdown), b.Damage,
		boolToInt(b.Collapsed), boolToInt(b.Burning), nullable(b.Overlay),
		boolToInt(b.Repairing), boolToInt(b.NeedsProfitRecalc), b.LastTickApplied, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert building: %w", err)
	}
	return nil
}

// DeleteVisualMarkerTx removes a visual-only marker occupying a tile so a
// real building can replace it.
func (r *Repository) DeleteVisualMarkerTx(tx *sql.Tx, tileID string) error {
	_, err := tx.Exec(`
		DELETE FROM building_instances
		WHERE tile_id = ? AND collapsed = 0
		AND type_id IN (SELECT id FROM building_types WHERE visual_only = 1)
	`, tileID)
	if err != nil {
		return fmt.Errorf("failed to remove visual marker: %w", err)
	}
	return nil
}

// DeleteTx hard-deletes an instance inside the caller's transaction.
func (r *Repository) DeleteTx(tx *sql.Tx, id string) error {
	_, err := tx.Exec(`DELETE FROM building_instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete building: %w", err)
	}
	return nil
}

// SetOwnerTx transfers an instance to another company.
func (r *Repository) SetOwnerTx(tx *sql.Tx, buildingID, companyID string) error {
	_, err := tx.Exec(`UPDATE building_instances SET company_id = ? WHERE id = ?`,
		nullable(companyID), buildingID)
	if err != nil {
		return fmt.Errorf("failed to transfer building: %w", err)
	}
	return nil
}

// ApplyDamageTx sets damage, overlay and burning state in one statement.
func (r *Repository) ApplyDamageTx(tx *sql.Tx, buildingID string, damage float64, overlay string, burning bool) error {
	_, err := tx.Exec(`
		UPDATE building_instances
		SET damage = ?, overlay = ?, burning = ?
		WHERE id = ?
	`, damage, nullable(overlay), boolToInt(burning), buildingID)
	if err != nil {
		return fmt.Errorf("failed to apply damage: %w", err)
	}
	return nil
}

// CollapseTx marks an instance collapsed. The tile becomes buildable again.
func (r *Repository) CollapseTx(tx *sql.Tx, buildingID string) error {
	_, err := tx.Exec(`
		UPDATE building_instances
		SET collapsed = 1, burning = 0, overlay = 'rubble', calculated_profit = 0
		WHERE id = ?
	`, buildingID)
	if err != nil {
		return fmt.Errorf("failed to collapse building: %w", err)
	}
	return nil
}

// ClearConditionTx clears overlay, burning or repairing flags after cleanup,
// extinguish or repair completes.
func (r *Repository) ClearConditionTx(tx *sql.Tx, buildingID string, damage float64, overlay string, burning, repairing bool) error {
	_, err := tx.Exec(`
		UPDATE building_instances
		SET damage = ?, overlay = ?, burning = ?, repairing = ?
		WHERE id = ?
	`, damage, nullable(overlay), boolToInt(burning), boolToInt(repairing), buildingID)
	if err != nil {
		return fmt.Errorf("failed to update building condition: %w", err)
	}
	return nil
}

// MarkDirtyAroundTx flags every live building in the 3x3 region around a
// changed tile for re-evaluation on the next tick.
func (r *Repository) MarkDirtyAroundTx(tx *sql.Tx, mapID string, x, y, width, height int) error {
	for _, c := range engine.Region(x, y, width, height) {
		_, err := tx.Exec(`
			UPDATE building_instances SET needs_profit_recalc = 1
			WHERE collapsed = 0 AND tile_id IN (
				SELECT id FROM tiles WHERE map_id = ? AND x = ? AND y = ?
			)
		`, mapID, c[0], c[1])
		if err != nil {
			return fmt.Errorf("failed to mark dirty region: %w", err)
		}
	}
	return nil
}

// UpdateEvaluationTx stores a fresh engine evaluation and clears the dirty flag.
func (r *Repository) UpdateEvaluationTx(tx *sql.Tx, buildingID string, profit, value int64, breakdown string) error {
	_, err := tx.Exec(`
		UPDATE building_instances
		SET calculated_profit = ?, calculated_value = ?, breakdown = ?, needs_profit_recalc = 0
		WHERE id = ?
	`, profit, value, breakdown, buildingID)
	if err != nil {
		return fmt.Errorf("failed to store evaluation: %w", err)
	}
	return nil
}

// SetLastTickAppliedTx stamps the tick a building last earned in.
func (r *Repository) SetLastTickAppliedTx(tx *sql.Tx, buildingID string, tickTS int64) error {
	_, err := tx.Exec(`UPDATE building_instances SET last_tick_applied = ? WHERE id = ?`, tickTS, buildingID)
	if err != nil {
		return fmt.Errorf("failed to stamp tick: %w", err)
	}
	return nil
}

// GetSecurityTx reads a building's security row inside the caller's transaction.
func (r *Repository) GetSecurityTx(tx *sql.Tx, buildingID string) (*domain.BuildingSecurity, error) {
	row := tx.QueryRow(`
		SELECT id, building_id, level, upkeep, resistance, created_at
		FROM building_security WHERE building_id = ?
	`, buildingID)

	var s domain.BuildingSecurity
	err := row.Scan(&s.ID, &s.BuildingID, &s.Level, &s.Upkeep, &s.Resistance, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load security: %w", err)
	}
	return &s, nil
}

// GetSecurity returns a building's security row, or nil.
func (r *Repository) GetSecurity(buildingID string) (*domain.BuildingSecurity, error) {
	row := r.db.QueryRow(`
		SELECT id, building_id, level, upkeep, resistance, created_at
		FROM building_security WHERE building_id = ?
	`, buildingID)

	var s domain.BuildingSecurity
	err := row.Scan(&s.ID, &s.BuildingID, &s.Level, &s.Upkeep, &s.Resistance, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load security: %w", err)
	}
	return &s, nil
}

// UpsertSecurityTx installs or upgrades security on a building.
func (r *Repository) UpsertSecurityTx(tx *sql.Tx, s *domain.BuildingSecurity) error {
	_, err := tx.Exec(`
		INSERT INTO building_security (id, building_id, level, upkeep, resistance, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(building_id) DO UPDATE SET
			level = excluded.level,
			upkeep = excluded.upkeep,
			resistance = excluded.resistance
	`, s.ID, s.BuildingID, s.Level, s.Upkeep, s.Resistance, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert security: %w", err)
	}
	return nil
}

// DeleteSecurityTx removes a building's security layer.
func (r *Repository) DeleteSecurityTx(tx *sql.Tx, buildingID string) error {
	_, err := tx.Exec(`DELETE FROM building_security WHERE building_id = ?`, buildingID)
	if err != nil {
		return fmt.Errorf("failed to remove security: %w", err)
	}
	return nil
}

func scanInstanceRow(row *sql.Row) (*domain.BuildingInstance, error) {
	var b domain.BuildingInstance
	var collapsed, burning, repairing, dirty int
	err := row.Scan(&b.ID, &b.TileID, &b.TypeID, &b.CompanyID, &b.Variant,
		&b.CalculatedProfit, &b.CalculatedValue, &b.Breakdown, &b.Damage,
		&collapsed, &burning, &b.Overlay, &repairing, &dirty, &b.LastTickApplied, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan building: %w", err)
	}
	b.Collapsed = collapsed != 0
	b.Burning = burning != 0
	b.Repairing = repairing != 0
	b.NeedsProfitRecalc = dirty != 0
	return &b, nil
}

func scanInstances(rows *sql.Rows) ([]domain.BuildingInstance, error) {
	var out []domain.BuildingInstance
	for rows.Next() {
		var b domain.BuildingInstance
		var collapsed, burning, repairing, dirty int
		err := rows.Scan(&b.ID, &b.TileID, &b.TypeID, &b.CompanyID, &b.Variant,
			&b.CalculatedProfit, &b.CalculatedValue, &b.Breakdown, &b.Damage,
			&collapsed, &burning, &b.Overlay, &repairing, &dirty, &b.LastTickApplied, &b.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan building: %w", err)
		}
		b.Collapsed = collapsed != 0
		b.Burning = burning != 0
		b.Repairing = repairing != 0
		b.NeedsProfitRecalc = dirty != 0
		out = append(out, b)
	}
	return out, rows.Err()
}

func instanceColumnsPrefixed(alias string) string {
	return alias + `.id, ` + alias + `.tile_id, ` + alias + `.type_id, COALESCE(` + alias + `.company_id, ''), COALESCE(` + alias + `.variant, ''),
	` + alias + `.calculated_profit, ` + alias + `.calculated_value, COALESCE(` + alias + `.breakdown, ''), ` + alias + `.damage, ` + alias + `.collapsed, ` + alias + `.burning,
	COALESCE(` + alias + `.overlay, ''), ` + alias + `.repairing, ` + alias + `.needs_profit_recalc, ` + alias + `.last_tick_applied, ` + alias + `.created_at`
}

// NewVisualMarker builds a visual-only instance (demolished site or claim
// stake) for a tile.
func NewVisualMarker(id, tileID, typeID, companyID string) *domain.BuildingInstance {
	return &domain.BuildingInstance{
		ID:        id,
		TileID:    tileID,
		TypeID:    typeID,
		CompanyID: companyID,
		CreatedAt: time.Now().Unix(),
	}
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
