// Package market persists peer-to-peer sale listings.
package market

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/domain"
)

// Repository handles market_listings in game.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new market repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "market").Logger(),
	}
}

const listingColumns = `id, map_id, tile_id, COALESCE(building_id, ''), seller_company_id,
	asking_price, status, created_at`

// CreateTx publishes a listing. The partial unique index rejects a second
// active listing on the same tile.
func (r *Repository) CreateTx(tx *sql.Tx, l *domain.MarketListing) error {
	_, err := tx.Exec(`
		INSERT INTO market_listings (id, map_id, tile_id, building_id, seller_company_id,
			asking_price, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ID, l.MapID, l.TileID, nullable(l.BuildingID), l.SellerCompanyID,
		l.AskingPrice, l.Status, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	return nil
}

// GetByIDTx loads one listing inside the caller's transaction. Returns nil
// when missing.
func (r *Repository) GetByIDTx(tx *sql.Tx, id string) (*domain.MarketListing, error) {
	row := tx.QueryRow(`SELECT `+listingColumns+` FROM market_listings WHERE id = ?`, id)
	return scanListingRow(row)
}

// GetActiveByTileTx returns the active listing on a tile, or nil.
func (r *Repository) GetActiveByTileTx(tx *sql.Tx, tileID string) (*domain.MarketListing, error) {
	row := tx.QueryRow(
		`SELECT `+listingColumns+` FROM market_listings WHERE tile_id = ? AND status = 'active'`,
		tileID)
	return scanListingRow(row)
}

// SetStatusTx transitions a listing to sold or cancelled.
func (r *Repository) SetStatusTx(tx *sql.Tx, id string, status domain.ListingStatus) error {
	_, err := tx.Exec(`UPDATE market_listings SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update listing status: %w", err)
	}
	return nil
}

// ListActiveByMap returns a map's open listings, oldest first.
func (r *Repository) ListActiveByMap(mapID string) ([]domain.MarketListing, error) {
	rows, err := r.db.Query(
		`SELECT `+listingColumns+` FROM market_listings WHERE map_id = ? AND status = 'active' ORDER BY created_at, id`,
		mapID)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketListing
	for rows.Next() {
		var l domain.MarketListing
		if err := rows.Scan(&l.ID, &l.MapID, &l.TileID, &l.BuildingID, &l.SellerCompanyID,
			&l.AskingPrice, &l.Status, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanListingRow(row *sql.Row) (*domain.MarketListing, error) {
	var l domain.MarketListing
	err := row.Scan(&l.ID, &l.MapID, &l.TileID, &l.BuildingID, &l.SellerCompanyID,
		&l.AskingPrice, &l.Status, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan listing: %w", err)
	}
	return &l, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
