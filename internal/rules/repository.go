package rules

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const rulesetKey = "ruleset"

// Repository persists the ruleset in game.db and caches it in memory.
// The cache is invalidated on Save, so admin overrides take effect on the
// next action without a restart.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger

	mu     sync.RWMutex
	cached *Ruleset
}

// NewRepository creates a new rules repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "rules").Logger(),
	}
}

// Seed writes the product defaults if no ruleset row exists yet.
func (r *Repository) Seed() error {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM rules WHERE key = ?", rulesetKey).Scan(&count); err != nil {
		return fmt.Errorf("failed to check ruleset presence: %w", err)
	}
	if count > 0 {
		return nil
	}
	return r.Save(Defaults())
}

// Get returns the current ruleset, loading it from the database on first use.
func (r *Repository) Get() (*Ruleset, error) {
	r.mu.RLock()
	if r.cached != nil {
		rs := r.cached
		r.mu.RUnlock()
		return rs, nil
	}
	r.mu.RUnlock()

	var raw string
	err := r.db.QueryRow("SELECT value FROM rules WHERE key = ?", rulesetKey).Scan(&raw)
	if err == sql.ErrNoRows {
		// Not seeded; fall back to defaults without persisting
		return Defaults(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ruleset: %w", err)
	}

	rs := &Ruleset{}
	if err := json.Unmarshal([]byte(raw), rs); err != nil {
		return nil, fmt.Errorf("failed to decode ruleset: %w", err)
	}

	r.mu.Lock()
	r.cached = rs
	r.mu.Unlock()

	return rs, nil
}

// Save persists the ruleset and refreshes the cache.
func (r *Repository) Save(rs *Ruleset) error {
	raw, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to encode ruleset: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO rules (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, rulesetKey, string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save ruleset: %w", err)
	}

	r.mu.Lock()
	r.cached = rs
	r.mu.Unlock()

	r.log.Info().Msg("Ruleset updated")
	return nil
}
