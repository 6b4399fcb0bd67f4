// Package social is the sublayer around the core economy: map chat, hero
// messages, temple donations and the casino games.
package social

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/domain"
)

// ChatMessage is one map-scoped chat post.
type ChatMessage struct {
	ID               string                  `json:"id"`
	MapID            string                  `json:"map_id"`
	CompanyID        string                  `json:"company_id"`
	Message          string                  `json:"message"`
	Visible          bool                    `json:"visible"`
	ModerationStatus domain.ModerationStatus `json:"moderation_status"`
	CreatedAt        int64                   `json:"created_at"`
}

// HeroMessage is the celebration text attached to a hero-out.
type HeroMessage struct {
	ID               string                  `json:"id"`
	CompanyID        string                  `json:"company_id"`
	MapID            string                  `json:"map_id"`
	Tier             domain.Tier             `json:"tier"`
	Message          string                  `json:"message"`
	Visible          bool                    `json:"visible"`
	ModerationStatus domain.ModerationStatus `json:"moderation_status"`
	CreatedAt        int64                   `json:"created_at"`
}

// Donation is one temple donation.
type Donation struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	MapID     string `json:"map_id"`
	Amount    int64  `json:"amount"`
	CreatedAt int64  `json:"created_at"`
}

// DonationTotal is one global-leaderboard row.
type DonationTotal struct {
	CompanyID string `json:"company_id"`
	Total     int64  `json:"total"`
}

// CasinoGame is one persisted game row. Blackjack hands serialize into the
// hand blob.
type CasinoGame struct {
	ID        string
	CompanyID string
	Game      string
	State     string
	Stake     int64
	Payout    int64
	Hand      []byte
	Seed      int64
	CreatedAt int64
	UpdatedAt int64
}

// Repository handles social.db persistence.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new social repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "social").Logger(),
	}
}

// InsertChat stores a chat message. Pending messages stay invisible.
func (r *Repository) InsertChat(m *ChatMessage) error {
	_, err := r.db.Exec(`
		INSERT INTO chat_messages (id, map_id, company_id, message, visible, moderation_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.MapID, m.CompanyID, m.Message, boolToInt(m.Visible), m.ModerationStatus, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

// ListVisibleChat returns a map's visible chat, newest first.
func (r *Repository) ListVisibleChat(mapID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, map_id, company_id, message, visible, moderation_status, created_at
		FROM chat_messages WHERE map_id = ? AND visible = 1
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, mapID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var visible int
		if err := rows.Scan(&m.ID, &m.MapID, &m.CompanyID, &m.Message, &visible, &m.ModerationStatus, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		m.Visible = visible != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListPendingChat returns chat posts awaiting an admin verdict.
func (r *Repository) ListPendingChat(limit int) ([]ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.Query(`
		SELECT id, map_id, company_id, message, visible, moderation_status, created_at
		FROM chat_messages WHERE moderation_status = 'pending'
		ORDER BY created_at LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending chat: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var visible int
		if err := rows.Scan(&m.ID, &m.MapID, &m.CompanyID, &m.Message, &visible, &m.ModerationStatus, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		m.Visible = visible != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetChatModeration applies an admin verdict; approval makes the post visible.
func (r *Repository) SetChatModeration(id string, status domain.ModerationStatus) error {
	visible := 0
	if status == domain.ModerationApproved {
		visible = 1
	}
	res, err := r.db.Exec(`
		UPDATE chat_messages SET moderation_status = ?, visible = ? WHERE id = ?
	`, status, visible, id)
	if err != nil {
		return fmt.Errorf("failed to moderate chat message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm moderation: %w", err)
	}
	if n == 0 {
		return domain.E(domain.KindNotFound, "chat message not found")
	}
	return nil
}

// InsertHeroMessage stores a hero-out celebration message.
func (r *Repository) InsertHeroMessage(m *HeroMessage) error {
	_, err := r.db.Exec(`
		INSERT INTO hero_messages (id, company_id, map_id, tier, message, visible, moderation_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.CompanyID, m.MapID, m.Tier, m.Message, boolToInt(m.Visible), m.ModerationStatus, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert hero message: %w", err)
	}
	return nil
}

// ListVisibleHeroMessages returns visible celebrations for a map.
func (r *Repository) ListVisibleHeroMessages(mapID string, limit int) ([]HeroMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT id, company_id, map_id, tier, message, visible, moderation_status, created_at
		FROM hero_messages WHERE map_id = ? AND visible = 1
		ORDER BY created_at DESC, id DESC LIMIT ?
	`, mapID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list hero messages: %w", err)
	}
	defer rows.Close()

	var out []HeroMessage
	for rows.Next() {
		var m HeroMessage
		var visible int
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.MapID, &m.Tier, &m.Message, &visible, &m.ModerationStatus, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hero message: %w", err)
		}
		m.Visible = visible != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertDonation records a temple donation.
func (r *Repository) InsertDonation(d *Donation) error {
	_, err := r.db.Exec(`
		INSERT INTO donations (id, company_id, map_id, amount, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.ID, d.CompanyID, d.MapID, d.Amount, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert donation: %w", err)
	}
	return nil
}

// DonationLeaderboard sums donations per company across all maps.
func (r *Repository) DonationLeaderboard(limit int) ([]DonationTotal, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.Query(`
		SELECT company_id, SUM(amount) AS total
		FROM donations GROUP BY company_id
		ORDER BY total DESC, company_id LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	defer rows.Close()

	var out []DonationTotal
	for rows.Next() {
		var t DonationTotal
		if err := rows.Scan(&t.CompanyID, &t.Total); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertCasinoGame stores a new game row.
func (r *Repository) InsertCasinoGame(g *CasinoGame) error {
	_, err := r.db.Exec(`
		INSERT INTO casino_games (id, company_id, game, state, stake, payout, hand, seed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, g.ID, g.CompanyID, g.Game, g.State, g.Stake, g.Payout, g.Hand, g.Seed, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert casino game: %w", err)
	}
	return nil
}

// GetCasinoGame loads one game row. Returns nil when missing.
func (r *Repository) GetCasinoGame(id string) (*CasinoGame, error) {
	row := r.db.QueryRow(`
		SELECT id, company_id, game, state, stake, payout, COALESCE(hand, x''), seed, created_at, updated_at
		FROM casino_games WHERE id = ?
	`, id)

	var g CasinoGame
	err := row.Scan(&g.ID, &g.CompanyID, &g.Game, &g.State, &g.Stake, &g.Payout, &g.Hand, &g.Seed, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casino game: %w", err)
	}
	return &g, nil
}

// UpdateCasinoGame stores a game's new state, hand and payout.
func (r *Repository) UpdateCasinoGame(g *CasinoGame) error {
	_, err := r.db.Exec(`
		UPDATE casino_games SET state = ?, payout = ?, hand = ?, updated_at = ? WHERE id = ?
	`, g.State, g.Payout, g.Hand, g.UpdatedAt, g.ID)
	if err != nil {
		return fmt.Errorf("failed to update casino game: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
