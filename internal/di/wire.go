// Package di wires configuration, databases, repositories and services
// into a single container. Order of operations:
// 1. Initialize databases and apply schemas
// 2. Initialize repositories and seed reference data
// 3. Initialize infrastructure clients and services
// 4. Initialize background jobs
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skourtis/boomtown/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeRepositories(container, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	InitializeJobs(container, cfg, log)

	log.Info().Msg("Dependency injection wiring completed")
	return container, nil
}
