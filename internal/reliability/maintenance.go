// Package reliability keeps the SQLite files healthy: a nightly job
// checkpoints the WAL, refreshes the query planner statistics and purges
// expired sessions.
package reliability

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/database"
	"github.com/skourtis/boomtown/internal/modules/auth"
)

// MaintenanceJob runs nightly upkeep across all databases.
type MaintenanceJob struct {
	databases []*database.DB
	authRepo  *auth.Repository
	log       zerolog.Logger
}

// NewMaintenanceJob creates the job. The auth repository may be nil when
// session purging is not wanted.
func NewMaintenanceJob(databases []*database.DB, authRepo *auth.Repository, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		authRepo:  authRepo,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name identifies the job to the scheduler.
func (j *MaintenanceJob) Name() string { return "maintenance" }

// Run performs one maintenance pass. Per-database failures are logged and do
// not abort the remaining databases.
func (j *MaintenanceJob) Run() error {
	var failed int
	for _, db := range j.databases {
		if db == nil {
			continue
		}
		if err := j.maintain(db); err != nil {
			failed++
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Database maintenance failed")
		}
	}

	if j.authRepo != nil {
		purged, err := j.authRepo.PurgeExpiredSessions()
		if err != nil {
			j.log.Error().Err(err).Msg("Session purge failed")
		} else if purged > 0 {
			j.log.Info().Int64("sessions", purged).Msg("Purged expired sessions")
		}
	}

	if failed > 0 {
		return fmt.Errorf("maintenance failed for %d databases", failed)
	}
	return nil
}

func (j *MaintenanceJob) maintain(db *database.DB) error {
	conn := db.Conn()

	// Fold the WAL back into the main file so it does not grow unbounded
	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		return err
	}
	if _, err := conn.Exec(`ANALYZE`); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if _, err := conn.Exec(`PRAGMA optimize`); err != nil {
		return fmt.Errorf("optimize: %w", err)
	}

	j.log.Debug().Str("database", db.Name()).Msg("Database maintenance completed")
	return nil
}
