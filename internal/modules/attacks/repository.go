// Package attacks implements the offensive-action engine: tricks, detection,
// damage against security, collapse, and the cleanup operations that undo
// the harm.
package attacks

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/domain"
)

// Repository handles attack rows in game.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new attacks repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "attacks").Logger(),
	}
}

const attackColumns = `id, attacker_company_id, building_id, trick, COALESCE(message, ''),
	moderation_status, detected, created_at`

// InsertTx records one attack inside the caller's transaction.
func (r *Repository) InsertTx(tx *sql.Tx, a *domain.Attack) error {
	_, err := tx.Exec(`
		INSERT INTO attacks (id, attacker_company_id, building_id, trick, message,
			moderation_status, detected, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.AttackerCompanyID, a.BuildingID, a.Trick, nullable(a.Message),
		a.ModerationStatus, boolToInt(a.Detected), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert attack: %w", err)
	}
	return nil
}

// LastByAttackerTrickTx returns when the attacker last used a trick, or 0.
func (r *Repository) LastByAttackerTrickTx(tx *sql.Tx, companyID, trick string) (int64, error) {
	var ts sql.NullInt64
	err := tx.QueryRow(`
		SELECT MAX(created_at) FROM attacks WHERE attacker_company_id = ? AND trick = ?
	`, companyID, trick).Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("failed to load last attack: %w", err)
	}
	return ts.Int64, nil
}

// ListPending returns attacks awaiting a moderation verdict, oldest first.
func (r *Repository) ListPending(limit int) ([]domain.Attack, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(
		`SELECT `+attackColumns+` FROM attacks WHERE moderation_status = 'pending' AND message IS NOT NULL ORDER BY created_at LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending attacks: %w", err)
	}
	defer rows.Close()
	return scanAttacks(rows)
}

// SetModerationStatus records an admin verdict on an attack message.
func (r *Repository) SetModerationStatus(id string, status domain.ModerationStatus) error {
	res, err := r.db.Exec(`UPDATE attacks SET moderation_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to set moderation status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm moderation update: %w", err)
	}
	if n == 0 {
		return domain.E(domain.KindNotFound, "attack not found")
	}
	return nil
}

// ListVisibleByBuilding returns approved attack messages on one building.
// Only approved messages are ever shown on the target tile.
func (r *Repository) ListVisibleByBuilding(buildingID string) ([]domain.Attack, error) {
	rows, err := r.db.Query(
		`SELECT `+attackColumns+` FROM attacks WHERE building_id = ? AND moderation_status = 'approved' AND message IS NOT NULL ORDER BY created_at DESC`,
		buildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attack messages: %w", err)
	}
	defer rows.Close()
	return scanAttacks(rows)
}

func scanAttacks(rows *sql.Rows) ([]domain.Attack, error) {
	var out []domain.Attack
	for rows.Next() {
		var a domain.Attack
		var detected int
		if err := rows.Scan(&a.ID, &a.AttackerCompanyID, &a.BuildingID, &a.Trick,
			&a.Message, &a.ModerationStatus, &detected, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attack: %w", err)
		}
		a.Detected = detected != 0
		out = append(out, a)
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
