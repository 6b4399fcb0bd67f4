package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/modules/attacks"
	"github.com/skourtis/boomtown/internal/modules/audit"
	"github.com/skourtis/boomtown/internal/modules/auth"
	"github.com/skourtis/boomtown/internal/modules/authz"
	"github.com/skourtis/boomtown/internal/modules/buildings"
	"github.com/skourtis/boomtown/internal/modules/company"
	"github.com/skourtis/boomtown/internal/modules/ledger"
	"github.com/skourtis/boomtown/internal/modules/market"
	"github.com/skourtis/boomtown/internal/modules/social"
	"github.com/skourtis/boomtown/internal/modules/world"
	"github.com/skourtis/boomtown/internal/rules"
)

// InitializeRepositories creates all repositories and seeds reference data.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	authConn := container.AuthDB.Conn()
	gameConn := container.GameDB.Conn()
	socialConn := container.SocialDB.Conn()

	container.AuthRepo = auth.NewRepository(authConn, log)
	container.AuthzRepo = authz.NewRepository(authConn, log)
	container.Audit = audit.NewRecorder(authConn, log)

	container.CompanyRepo = company.NewRepository(gameConn, log)
	container.WorldRepo = world.NewRepository(gameConn, log)
	container.BuildingRepo = buildings.NewRepository(gameConn, log)
	container.MarketRepo = market.NewRepository(gameConn, log)
	container.LedgerRepo = ledger.NewRepository(gameConn, log)
	container.AttackRepo = attacks.NewRepository(gameConn, log)
	container.RulesRepo = rules.NewRepository(gameConn, log)

	container.SocialRepo = social.NewRepository(socialConn, log)

	// Reference data is idempotent: existing rows win over defaults.
	if err := container.RulesRepo.Seed(); err != nil {
		return fmt.Errorf("failed to seed ruleset: %w", err)
	}
	if err := container.BuildingRepo.SeedCatalog(); err != nil {
		return fmt.Errorf("failed to seed building catalog: %w", err)
	}

	log.Info().Msg("Repositories initialized")
	return nil
}
