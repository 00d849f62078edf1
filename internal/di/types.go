// Package di provides dependency injection type definitions and wiring.
package di

import (
	"github.com/aristath/riskguard/internal/database"
	"github.com/aristath/riskguard/internal/events"
	"github.com/aristath/riskguard/internal/metrics"
	"github.com/aristath/riskguard/internal/modules/risk"
	riskhandlers "github.com/aristath/riskguard/internal/modules/risk/handlers"
	"github.com/aristath/riskguard/internal/reliability"
	"github.com/aristath/riskguard/internal/scheduler"
	"github.com/aristath/riskguard/internal/server"
)

// Container holds all dependencies for the application.
// It is created by Wire and owns the database connection.
type Container struct {
	// Storage
	RiskDB   *database.DB
	RiskRepo *risk.Repository

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Risk evaluation
	Sink       risk.EventSink
	Aggregator *risk.Aggregator

	// Observability
	Metrics *metrics.Registry

	// Maintenance
	Scheduler      *scheduler.Scheduler
	RetentionJob   *reliability.RetentionJob
	MaintenanceJob *reliability.DatabaseMaintenanceJob

	// HTTP
	RiskHandler    *riskhandlers.Handler
	SystemHandlers *server.SystemHandlers
}

// Close releases resources held by the container
func (c *Container) Close() error {
	if c.RiskDB != nil {
		return c.RiskDB.Close()
	}
	return nil
}
