package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/config"
	"github.com/skourtis/boomtown/internal/database"
)

// InitializeDatabases opens the three databases and applies their schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// auth.db - users, sessions, tenants, audit trail
	authDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/auth.db",
		Profile: database.ProfileStandard,
		Name:    "auth",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth database: %w", err)
	}
	container.AuthDB = authDB

	// game.db - maps, tiles, buildings, companies, the money ledger. The
	// ledger profile trades write speed for durability on every commit.
	gameDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/game.db",
		Profile: database.ProfileLedger,
		Name:    "game",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize game database: %w", err)
	}
	container.GameDB = gameDB

	// social.db - chat, hero messages, donations, casino games
	socialDB, err := database.New(database.Config{
		Path:    cfg.DataDir + "/social.db",
		Profile: database.ProfileStandard,
		Name:    "social",
	})
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize social database: %w", err)
	}
	container.SocialDB = socialDB

	for _, db := range []*database.DB{authDB, gameDB, socialDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}
