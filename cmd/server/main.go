// Package main is the entry point for the Boomtown game backend. It loads
// configuration, wires dependencies, registers the tick job and runs the
// HTTP server until a shutdown signal arrives.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skourtis/boomtown/internal/config"
	"github.com/skourtis/boomtown/internal/di"
	"github.com/skourtis/boomtown/internal/metrics"
	"github.com/skourtis/boomtown/internal/scheduler"
	"github.com/skourtis/boomtown/internal/server"
	"github.com/skourtis/boomtown/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Boomtown")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	m := metrics.New()
	container.TickProcessor.Instrument(m)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.TickCron, container.TickProcessor); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.TickCron).Msg("Failed to register tick job")
	}
	if err := sched.AddJob(cfg.MaintenanceCron, container.Maintenance); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.MaintenanceCron).Msg("Failed to register maintenance job")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:     log,
		Config:  cfg,
		Metrics: m,

		AuthDB:   container.AuthDB,
		GameDB:   container.GameDB,
		SocialDB: container.SocialDB,

		AuthService:    container.AuthService,
		AuthzService:   container.AuthzService,
		CompanyService: container.CompanyService,
		WorldService:   container.WorldService,
		ActionService:  container.ActionService,
		AttackService:  container.AttackService,
		SocialService:  container.SocialService,

		BuildingRepo: container.BuildingRepo,
		MarketRepo:   container.MarketRepo,
		LedgerRepo:   container.LedgerRepo,
		RulesRepo:    container.RulesRepo,

		Audit:     container.Audit,
		Hub:       container.Hub,
		Assets:    container.Assets,
		Scheduler: sched,
		TickJob:   container.TickProcessor,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Shutdown complete")
}
