package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/riskguard/internal/config"
	"github.com/aristath/riskguard/internal/events"
	"github.com/aristath/riskguard/internal/metrics"
	"github.com/aristath/riskguard/internal/modules/risk"
	riskhandlers "github.com/aristath/riskguard/internal/modules/risk/handlers"
)

// InitializeServices creates the event bus, sinks, aggregator and HTTP handlers.
// Requires InitializeDatabases to have run.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.RiskRepo = risk.NewRepository(container.RiskDB.Conn(), log)

	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	container.Metrics = metrics.NewRegistry()

	// The repository records last
	container.Sink = risk.NewMultiSink(
		risk.NewLogSink(log),
		risk.NewBusSink(container.EventManager),
		container.RiskRepo,
	)

	container.Aggregator = risk.NewAggregator(
		container.Sink,
		log,
		risk.WithParallelChecks(cfg.Risk.ParallelChecks),
		risk.WithPeriodsPerYear(cfg.Risk.PeriodsPerYear),
		risk.WithObserver(container.Metrics),
	)

	container.RiskHandler = riskhandlers.NewHandler(
		container.Aggregator,
		container.RiskRepo,
		cfg.Risk.Limits,
		container.EventManager,
		log,
	)

	log.Info().
		Float64("max_leverage", cfg.Risk.Limits.MaxLeverage).
		Float64("max_correlation_risk", cfg.Risk.Limits.MaxCorrelationRisk).
		Float64("max_portfolio_volatility", cfg.Risk.Limits.MaxPortfolioVolatility).
		Float64("max_jump_risk", cfg.Risk.Limits.MaxJumpRisk).
		Bool("parallel_checks", cfg.Risk.ParallelChecks).
		Msg("Risk aggregator initialized")

	return nil
}
