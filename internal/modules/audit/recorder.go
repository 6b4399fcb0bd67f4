// Package audit keeps the immutable security trail: a normalized log plus a
// denormalized display copy so entries survive user deletion.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Entry is one security-relevant event.
type Entry struct {
	ID          string `json:"id"`
	ActorUserID string `json:"actor_user_id,omitempty"`
	Action      string `json:"action"`
	Subject     string `json:"subject,omitempty"`
	Details     string `json:"details,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// DisplayEntry is the denormalized view row.
type DisplayEntry struct {
	ID         string `json:"id"`
	AuditID    string `json:"audit_id"`
	ActorEmail string `json:"actor_email,omitempty"`
	ActorRole  string `json:"actor_role,omitempty"`
	Summary    string `json:"summary"`
	CreatedAt  int64  `json:"created_at"`
}

// Recorder writes audit rows to auth.db. Record never fails the calling
// action; write errors are logged and dropped.
type Recorder struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRecorder creates an audit recorder.
func NewRecorder(db *sql.DB, log zerolog.Logger) *Recorder {
	return &Recorder{
		db:  db,
		log: log.With().Str("component", "audit").Logger(),
	}
}

// Record appends one entry and its display copy.
func (r *Recorder) Record(actorUserID, action, subject, details string) {
	now := time.Now().Unix()
	auditID := uuid.New().String()

	if _, err := r.db.Exec(`
		INSERT INTO audit_log (id, actor_user_id, action, subject, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, auditID, nullable(actorUserID), action, nullable(subject), nullable(details), now); err != nil {
		r.log.Error().Err(err).Str("action", action).Msg("Audit write failed")
		return
	}

	email, role := "", ""
	if actorUserID != "" {
		_ = r.db.QueryRow(`SELECT email, role FROM users WHERE id = ?`, actorUserID).Scan(&email, &role)
	}
	summary := action
	if subject != "" {
		summary = fmt.Sprintf("%s: %s", action, subject)
	}
	if _, err := r.db.Exec(`
		INSERT INTO audit_log_display (id, audit_id, actor_email, actor_role, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), auditID, nullable(email), nullable(role), summary, now); err != nil {
		r.log.Error().Err(err).Str("action", action).Msg("Audit display write failed")
	}
}

// List returns recent display entries, newest first.
func (r *Recorder) List(limit int) ([]DisplayEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := r.db.Query(`
		SELECT id, audit_id, COALESCE(actor_email, ''), COALESCE(actor_role, ''), summary, created_at
		FROM audit_log_display ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var out []DisplayEntry
	for rows.Next() {
		var e DisplayEntry
		if err := rows.Scan(&e.ID, &e.AuditID, &e.ActorEmail, &e.ActorRole, &e.Summary, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
