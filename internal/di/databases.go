package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/riskguard/internal/config"
	"github.com/aristath/riskguard/internal/database"
)

// InitializeDatabases opens the risk database and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// risk.db - breach events; durable because events are the audit trail of every scaling decision
	riskDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileDurable,
		Name:    "risk",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize risk database: %w", err)
	}

	if err := riskDB.Migrate(); err != nil {
		riskDB.Close()
		return nil, fmt.Errorf("failed to apply risk schema: %w", err)
	}
	container.RiskDB = riskDB

	log.Info().Str("path", riskDB.Path()).Msg("Risk database initialized")
	return container, nil
}
