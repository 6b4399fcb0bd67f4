package di

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/config"
	"github.com/skourtis/boomtown/internal/domain"
	"github.com/skourtis/boomtown/internal/mailer"
	"github.com/skourtis/boomtown/internal/moderation"
	"github.com/skourtis/boomtown/internal/modules/actions"
	"github.com/skourtis/boomtown/internal/modules/attacks"
	"github.com/skourtis/boomtown/internal/modules/auth"
	"github.com/skourtis/boomtown/internal/modules/authz"
	"github.com/skourtis/boomtown/internal/modules/company"
	"github.com/skourtis/boomtown/internal/modules/social"
	"github.com/skourtis/boomtown/internal/modules/world"
	"github.com/skourtis/boomtown/internal/storage"
)

// InitializeServices creates the infrastructure clients and all services.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	mail, err := mailer.New(cfg.SMTPAddr, cfg.EmailSender, log)
	if err != nil {
		return fmt.Errorf("failed to initialize mailer: %w", err)
	}
	container.Mailer = mail

	container.Moderation = moderation.NewClient(cfg.ModerationURL, cfg.ModerationTimeout, log)
	container.Tokens = auth.NewTokenManager(cfg.TokenSecret, cfg.WebSessionTTL, cfg.MobileSessionTTL)
	container.Hub = social.NewHub(log)

	assets, err := storage.New(context.Background(), cfg.AssetsBucket, cfg.AssetsRegion, log)
	if err != nil {
		return fmt.Errorf("failed to initialize asset storage: %w", err)
	}
	container.Assets = assets

	tickEvery, err := tickInterval(cfg.TickCron)
	if err != nil {
		return fmt.Errorf("invalid tick schedule %q: %w", cfg.TickCron, err)
	}

	gameConn := container.GameDB.Conn()

	container.AuthService = auth.NewService(container.AuthRepo, container.Tokens,
		container.Mailer, container.Audit, cfg.MagicLinkBase, log)
	container.AuthzService = authz.NewService(container.AuthzRepo, log)

	startingCash := company.StartingCash{
		domain.TierTown:    cfg.TownStartingCash,
		domain.TierCity:    cfg.CityStartingCash,
		domain.TierCapital: cfg.CapitalStartingCash,
	}
	container.CompanyService = company.NewService(gameConn, container.CompanyRepo,
		container.WorldRepo, container.BuildingRepo, container.LedgerRepo,
		container.RulesRepo, container.Moderation, startingCash, log)

	container.WorldService = world.NewService(container.WorldRepo, log)

	container.ActionService = actions.NewService(gameConn, container.CompanyRepo,
		container.WorldRepo, container.BuildingRepo, container.MarketRepo,
		container.LedgerRepo, container.RulesRepo, container.Moderation, tickEvery, log)

	container.AttackService = attacks.NewService(gameConn, container.AttackRepo,
		container.CompanyRepo, container.WorldRepo, container.BuildingRepo,
		container.LedgerRepo, container.RulesRepo, container.Moderation, tickEvery, log)

	container.SocialService = social.NewService(gameConn, container.SocialRepo,
		container.CompanyRepo, container.WorldRepo, container.LedgerRepo,
		container.RulesRepo, container.Moderation, container.Hub, log)

	log.Info().Dur("tick_interval", tickEvery).Msg("Services initialized")
	return nil
}

// tickInterval derives the wall-clock gap between ticks from the cron
// expression, so tick-denominated cooldowns can be enforced in time.
func tickInterval(spec string) (time.Duration, error) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(spec)
	if err != nil {
		return 0, err
	}
	first := sched.Next(time.Now())
	second := sched.Next(first)
	return second.Sub(first), nil
}
