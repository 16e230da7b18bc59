// Package main is the entry point for the pricelens price-intelligence
// service. It tracks live quick-commerce prices, answers natural-language
// price questions, and serves monitoring endpoints over HTTP.
//
// The application follows clean architecture principles:
// - Dependency injection via DI container
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pricelens/pricelens/internal/config"
	"github.com/pricelens/pricelens/internal/di"
	"github.com/pricelens/pricelens/internal/server"
	"github.com/pricelens/pricelens/pkg/logger"
)

const shutdownGrace = 15 * time.Second

// main orchestrates the startup sequence:
//  1. Load configuration from environment variables
//  2. Initialize logging
//  3. Wire all dependencies via the DI container (databases, repositories,
//     services, background jobs)
//  4. Start the HTTP server
//  5. Start the scheduler (price engine cycles, system sampling, cache
//     sweeping, embedding refresh)
//  6. Wait for a shutdown signal and drain gracefully
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting pricelens")

	container, sched, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:         log,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		RateDefault: cfg.RateLimit.PerMinute,
		CatalogDB:   container.CatalogDB,
		KVDB:        container.KVDB,
		Cache:       container.Cache,
		Queries:     container.Queries,
		Comparison:  container.Comparison,
		Trends:      container.Trends,
		Deals:       container.Deals,
		Engine:      container.Engine,
		Monitors:    container.Monitors,
		APIMonitor:  container.APIMonitor,
		Broadcaster: container.Broadcaster,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	sched.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server stopped unexpectedly")
		}
	}

	// Stop taking new work first, then drain the engine, then the server
	sched.Stop()
	if container.Engine != nil {
		container.Engine.Stop(shutdownGrace)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}

	log.Info().Msg("pricelens stopped")
}
