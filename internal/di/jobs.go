package di

import (
	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/config"
	"github.com/skourtis/boomtown/internal/database"
	"github.com/skourtis/boomtown/internal/reliability"
	"github.com/skourtis/boomtown/internal/tick"
)

// InitializeJobs creates the background job instances. Registration with the
// scheduler happens in main so tests can run jobs directly.
func InitializeJobs(container *Container, cfg *config.Config, log zerolog.Logger) {
	container.TickProcessor = tick.NewProcessor(container.GameDB.Conn(),
		container.WorldRepo, container.BuildingRepo, container.CompanyRepo,
		container.RulesRepo, cfg.TickWorkers, log)

	container.Maintenance = reliability.NewMaintenanceJob(
		[]*database.DB{container.AuthDB, container.GameDB, container.SocialDB},
		container.AuthRepo, log)

	log.Info().
		Str("schedule", cfg.TickCron).
		Int("workers", cfg.TickWorkers).
		Msg("Background jobs initialized")
}
