package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/riskguard/internal/config"
	"github.com/aristath/riskguard/internal/server"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Initialize databases
// 2. Initialize services
// 3. Register jobs
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := RegisterJobs(ctx, container, cfg, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, nil
}

// NewServer builds the HTTP server from a wired container
func NewServer(container *Container, cfg *config.Config, log zerolog.Logger) *server.Server {
	return server.New(server.Config{
		Log:            log,
		DB:             container.RiskDB,
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		RiskHandler:    container.RiskHandler,
		SystemHandlers: container.SystemHandlers,
		EventBus:       container.EventBus,
		Metrics:        container.Metrics,
		MetricsHandler: container.Metrics.Handler(),
	})
}
