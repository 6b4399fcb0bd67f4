// Package ledger is the append-only transaction trail of every economic action.
package ledger

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/domain"
)

// Repository appends and reads transaction rows in game.db. Rows are never
// updated or deleted.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "ledger").Logger(),
	}
}

// AppendTx writes one transaction row inside the caller's transaction.
func (r *Repository) AppendTx(tx *sql.Tx, t *domain.Transaction) error {
	_, err := tx.Exec(`
		INSERT INTO transactions (id, type, company_id, map_id, tile_id, building_id,
			amount, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Type, t.CompanyID, nullable(t.MapID), nullable(t.TileID),
		nullable(t.BuildingID), t.Amount, nullable(t.Details), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// ListByCompany returns a company's most recent transactions.
func (r *Repository) ListByCompany(companyID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(`
		SELECT id, type, company_id, COALESCE(map_id, ''), COALESCE(tile_id, ''),
			COALESCE(building_id, ''), amount, COALESCE(details, ''), created_at
		FROM transactions WHERE company_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(&t.ID, &t.Type, &t.CompanyID, &t.MapID, &t.TileID,
			&t.BuildingID, &t.Amount, &t.Details, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LastOfTypeTx returns the created_at of a company's most recent transaction
// of one type, or 0 when none exists. Used to enforce action cooldowns.
func (r *Repository) LastOfTypeTx(tx *sql.Tx, companyID, txType string) (int64, error) {
	var ts sql.NullInt64
	err := tx.QueryRow(`
		SELECT MAX(created_at) FROM transactions WHERE company_id = ? AND type = ?
	`, companyID, txType).Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("failed to load last transaction: %w", err)
	}
	return ts.Int64, nil
}

// HasUnlockDetail reports whether a company has a transaction of the given
// type whose details mention a tier. Used to audit hero-out unlock tokens.
func (r *Repository) HasUnlockDetail(companyID, txType, tier string) (bool, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM transactions
		WHERE company_id = ? AND type = ? AND details LIKE ?
	`, companyID, txType, "%"+tier+"%").Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check unlock: %w", err)
	}
	return count > 0, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
