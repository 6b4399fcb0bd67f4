package di

import (
	"github.com/skourtis/boomtown/internal/database"
	"github.com/skourtis/boomtown/internal/mailer"
	"github.com/skourtis/boomtown/internal/moderation"
	"github.com/skourtis/boomtown/internal/modules/actions"
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
	"github.com/skourtis/boomtown/internal/reliability"
	"github.com/skourtis/boomtown/internal/rules"
	"github.com/skourtis/boomtown/internal/storage"
	"github.com/skourtis/boomtown/internal/tick"
)

// Container holds all initialized dependencies, built in stages by Wire.
type Container struct {
	// Databases
	AuthDB   *database.DB
	GameDB   *database.DB
	SocialDB *database.DB

	// Repositories
	AuthRepo     *auth.Repository
	AuthzRepo    *authz.Repository
	CompanyRepo  *company.Repository
	WorldRepo    *world.Repository
	BuildingRepo *buildings.Repository
	MarketRepo   *market.Repository
	LedgerRepo   *ledger.Repository
	AttackRepo   *attacks.Repository
	SocialRepo   *social.Repository
	RulesRepo    *rules.Repository
	Audit        *audit.Recorder

	// Infrastructure
	Tokens     *auth.TokenManager
	Mailer     mailer.Sender
	Moderation moderation.Gate
	Hub        *social.Hub
	Assets     *storage.Store

	// Services
	AuthService    *auth.Service
	AuthzService   *authz.Service
	CompanyService *company.Service
	WorldService   *world.Service
	ActionService  *actions.Service
	AttackService  *attacks.Service
	SocialService  *social.Service

	// Background jobs
	TickProcessor *tick.Processor
	Maintenance   *reliability.MaintenanceJob
}

// Close releases every database connection. Safe to call after a partial
// Wire failure.
func (c *Container) Close() {
	for _, db := range []*database.DB{c.SocialDB, c.GameDB, c.AuthDB} {
		if db != nil {
			db.Close()
		}
	}
}
