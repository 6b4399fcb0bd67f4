// Package company manages game companies: the player's economic actors.
package company

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/domain"
)

// Repository handles game_companies, tier_unlocks and company_statistics.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new company repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "company").Logger(),
	}
}

const companyColumns = `id, user_id, name, boss_name, cash, offshore, level, total_actions,
	ticks_since_action, in_prison, fine, land_streak, COALESCE(map_id, ''), COALESCE(tier_joined, ''),
	inactive, created_at`

// Create inserts a new game company.
func (r *Repository) Create(c *domain.GameCompany) error {
	_, err := r.db.Exec(`
		INSERT INTO game_companies (id, user_id, name, boss_name, cash, offshore, level,
			total_actions, ticks_since_action, in_prison, fine, land_streak, map_id,
			tier_joined, inactive, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.Name, c.BossName, c.Cash, c.Offshore, c.Level,
		c.TotalActions, c.TicksSinceAction, boolToInt(c.InPrison), c.Fine, c.LandStreak,
		nullable(c.MapID), nullable(string(c.TierJoined)), boolToInt(c.Inactive), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

// GetByID loads one company. Returns nil when missing.
func (r *Repository) GetByID(id string) (*domain.GameCompany, error) {
	row := r.db.QueryRow(`SELECT `+companyColumns+` FROM game_companies WHERE id = ?`, id)
	return scanCompanyRow(row)
}

// GetByIDTx loads one company inside the caller's transaction. SQLite
// serializes writers, so the read is consistent with the pending writes.
func (r *Repository) GetByIDTx(tx *sql.Tx, id string) (*domain.GameCompany, error) {
	row := tx.QueryRow(`SELECT `+companyColumns+` FROM game_companies WHERE id = ?`, id)
	return scanCompanyRow(row)
}

// ListByUser returns all companies a user owns.
func (r *Repository) ListByUser(userID string) ([]domain.GameCompany, error) {
	rows, err := r.db.Query(
		`SELECT `+companyColumns+` FROM game_companies WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()
	return scanCompanies(rows)
}

// CountByUser counts a user's companies, for the per-user cap.
func (r *Repository) CountByUser(userID string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM game_companies WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count companies: %w", err)
	}
	return count, nil
}

// NameExists reports whether a company name is already taken.
func (r *Repository) NameExists(name string) (bool, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM game_companies WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check company name: %w", err)
	}
	return count > 0, nil
}

// ListByMap returns every company currently on a map.
func (r *Repository) ListByMap(mapID string) ([]domain.GameCompany, error) {
	rows, err := r.db.Query(
		`SELECT `+companyColumns+` FROM game_companies WHERE map_id = ? ORDER BY created_at, id`, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to list map companies: %w", err)
	}
	defer rows.Close()
	return scanCompanies(rows)
}

// ListByMapTx loads a map's companies inside the tick transaction.
func (r *Repository) ListByMapTx(tx *sql.Tx, mapID string) ([]domain.GameCompany, error) {
	rows, err := tx.Query(
		`SELECT `+companyColumns+` FROM game_companies WHERE map_id = ? ORDER BY created_at, id`, mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to list map companies: %w", err)
	}
	defer rows.Close()
	return scanCompanies(rows)
}

// AdjustCashTx applies a signed delta to a company's cash.
func (r *Repository) AdjustCashTx(tx *sql.Tx, companyID string, delta int64) error {
	_, err := tx.Exec(`UPDATE game_companies SET cash = cash + ? WHERE id = ?`, delta, companyID)
	if err != nil {
		return fmt.Errorf("failed to adjust cash: %w", err)
	}
	return nil
}

// RecordActionTx bumps the action counter and resets the inactivity clock.
func (r *Repository) RecordActionTx(tx *sql.Tx, companyID string) error {
	_, err := tx.Exec(`
		UPDATE game_companies
		SET total_actions = total_actions + 1, ticks_since_action = 0, inactive = 0
		WHERE id = ?
	`, companyID)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

// SetLevelTx stores a new level after a threshold crossing.
func (r *Repository) SetLevelTx(tx *sql.Tx, companyID string, level int) error {
	_, err := tx.Exec(`UPDATE game_companies SET level = ? WHERE id = ?`, level, companyID)
	if err != nil {
		return fmt.Errorf("failed to set level: %w", err)
	}
	return nil
}

// SetLandStreakTx stores the land-ownership streak counter.
func (r *Repository) SetLandStreakTx(tx *sql.Tx, companyID string, streak int) error {
	_, err := tx.Exec(`UPDATE game_companies SET land_streak = ? WHERE id = ?`, streak, companyID)
	if err != nil {
		return fmt.Errorf("failed to set land streak: %w", err)
	}
	return nil
}

// ImprisonTx puts a company in prison with a fine.
func (r *Repository) ImprisonTx(tx *sql.Tx, companyID string, fine int64) error {
	_, err := tx.Exec(`UPDATE game_companies SET in_prison = 1, fine = ? WHERE id = ?`, fine, companyID)
	if err != nil {
		return fmt.Errorf("failed to imprison company: %w", err)
	}
	return nil
}

// ReleaseTx clears prison state after the fine is paid.
func (r *Repository) ReleaseTx(tx *sql.Tx, companyID string) error {
	_, err := tx.Exec(`UPDATE game_companies SET in_prison = 0, fine = 0 WHERE id = ?`, companyID)
	if err != nil {
		return fmt.Errorf("failed to release company: %w", err)
	}
	return nil
}

// JoinMapTx places a company on a map with its tier starting cash.
func (r *Repository) JoinMapTx(tx *sql.Tx, companyID, mapID string, tier domain.Tier, startingCash int64) error {
	_, err := tx.Exec(`
		UPDATE game_companies
		SET map_id = ?, tier_joined = ?, cash = ?, land_streak = 0, ticks_since_action = 0
		WHERE id = ?
	`, mapID, tier, startingCash, companyID)
	if err != nil {
		return fmt.Errorf("failed to join map: %w", err)
	}
	return nil
}

// LeaveMapTx removes a company from its map, forfeiting cash.
func (r *Repository) LeaveMapTx(tx *sql.Tx, companyID string) error {
	_, err := tx.Exec(`
		UPDATE game_companies SET map_id = NULL, tier_joined = NULL, cash = 0 WHERE id = ?
	`, companyID)
	if err != nil {
		return fmt.Errorf("failed to leave map: %w", err)
	}
	return nil
}

// HasTierUnlock reports whether a company heroed out into a tier.
func (r *Repository) HasTierUnlock(companyID string, tier domain.Tier) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM tier_unlocks WHERE company_id = ? AND tier = ?`, companyID, tier).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check tier unlock: %w", err)
	}
	return count > 0, nil
}

// GrantTierUnlockTx records a tier unlock earned by heroing out.
func (r *Repository) GrantTierUnlockTx(tx *sql.Tx, companyID string, tier domain.Tier, now int64) error {
	_, err := tx.Exec(`
		INSERT INTO tier_unlocks (company_id, tier, created_at) VALUES (?, ?, ?)
		ON CONFLICT(company_id, tier) DO NOTHING
	`, companyID, tier, now)
	if err != nil {
		return fmt.Errorf("failed to grant tier unlock: %w", err)
	}
	return nil
}

// GetStatistics loads the latest per-map snapshot for a company. Returns nil
// when no tick has run yet.
func (r *Repository) GetStatistics(companyID, mapID string) (*domain.CompanyStatistics, error) {
	row := r.db.QueryRow(`
		SELECT company_id, map_id, tick_ts, net_worth, cash, land_pct, buildings,
			profit_mean, profit_stddev
		FROM company_statistics WHERE company_id = ? AND map_id = ?
	`, companyID, mapID)

	var s domain.CompanyStatistics
	err := row.Scan(&s.CompanyID, &s.MapID, &s.TickTS, &s.NetWorth, &s.Cash,
		&s.LandPct, &s.Buildings, &s.ProfitMean, &s.ProfitStddev)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load statistics: %w", err)
	}
	return &s, nil
}

// UpsertStatisticsTx writes the tick snapshot for one (company, map).
func (r *Repository) UpsertStatisticsTx(tx *sql.Tx, s *domain.CompanyStatistics) error {
	_, err := tx.Exec(`
		INSERT INTO company_statistics (company_id, map_id, tick_ts, net_worth, cash,
			land_pct, buildings, profit_mean, profit_stddev)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, map_id) DO UPDATE SET
			tick_ts = excluded.tick_ts,
			net_worth = excluded.net_worth,
			cash = excluded.cash,
			land_pct = excluded.land_pct,
			buildings = excluded.buildings,
			profit_mean = excluded.profit_mean,
			profit_stddev = excluded.profit_stddev
	`, s.CompanyID, s.MapID, s.TickTS, s.NetWorth, s.Cash, s.LandPct, s.Buildings,
		s.ProfitMean, s.ProfitStddev)
	if err != nil {
		return fmt.Errorf("failed to upsert statistics: %w", err)
	}
	return nil
}

// IncrementInactivityTx bumps ticks_since_action for every company on a map
// and flags those crossing the threshold inactive.
func (r *Repository) IncrementInactivityTx(tx *sql.Tx, mapID string, threshold int) error {
	if _, err := tx.Exec(`
		UPDATE game_companies SET ticks_since_action = ticks_since_action + 1 WHERE map_id = ?
	`, mapID); err != nil {
		return fmt.Errorf("failed to bump inactivity: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE game_companies SET inactive = 1
		WHERE map_id = ? AND ticks_since_action >= ?
	`, mapID, threshold); err != nil {
		return fmt.Errorf("failed to flag inactive companies: %w", err)
	}
	return nil
}

func scanCompanyRow(row *sql.Row) (*domain.GameCompany, error) {
	var c domain.GameCompany
	var inPrison, inactive int
	var tierJoined string
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.BossName, &c.Cash, &c.Offshore,
		&c.Level, &c.TotalActions, &c.TicksSinceAction, &inPrison, &c.Fine,
		&c.LandStreak, &c.MapID, &tierJoined, &inactive, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}
	c.InPrison = inPrison != 0
	c.Inactive = inactive != 0
	c.TierJoined = domain.Tier(tierJoined)
	return &c, nil
}

func scanCompanies(rows *sql.Rows) ([]domain.GameCompany, error) {
	var out []domain.GameCompany
	for rows.Next() {
		var c domain.GameCompany
		var inPrison, inactive int
		var tierJoined string
		err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.BossName, &c.Cash, &c.Offshore,
			&c.Level, &c.TotalActions, &c.TicksSinceAction, &inPrison, &c.Fine,
			&c.LandStreak, &c.MapID, &tierJoined, &inactive, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		c.InPrison = inPrison != 0
		c.Inactive = inactive != 0
		c.TierJoined = domain.Tier(tierJoined)
		out = append(out, c)
	}
	return out, rows.Err()
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
