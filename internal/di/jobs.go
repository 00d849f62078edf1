package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/riskguard/internal/config"
	"github.com/aristath/riskguard/internal/reliability"
	"github.com/aristath/riskguard/internal/scheduler"
	"github.com/aristath/riskguard/internal/server"
)

// archiverFactory is replaceable in tests
var archiverFactory = func(ctx context.Context, bucket, prefix string, log zerolog.Logger) (reliability.Archiver, error) {
	return reliability.NewS3Archiver(ctx, bucket, prefix, log)
}

// RegisterJobs creates the scheduler and registers maintenance jobs.
// The scheduler is not started.
func RegisterJobs(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Scheduler = scheduler.New(log, container.Metrics)

	var archiver reliability.Archiver
	if cfg.Maintenance.ArchiveBucket != "" {
		a, err := archiverFactory(ctx, cfg.Maintenance.ArchiveBucket, cfg.Maintenance.ArchivePrefix, log)
		if err != nil {
			return fmt.Errorf("failed to create risk event archiver: %w", err)
		}
		archiver = a
	}

	container.RetentionJob = reliability.NewRetentionJob(
		container.RiskRepo,
		archiver,
		container.RiskDB,
		cfg.Maintenance.RetentionDays,
		log,
	)
	if err := container.Scheduler.AddJob(cfg.Maintenance.Schedule, container.RetentionJob); err != nil {
		return fmt.Errorf("failed to register retention job: %w", err)
	}

	container.MaintenanceJob = reliability.NewDatabaseMaintenanceJob(container.RiskDB, log)
	if err := container.Scheduler.AddJob(cfg.Maintenance.DBSchedule, container.MaintenanceJob); err != nil {
		return fmt.Errorf("failed to register database maintenance job: %w", err)
	}

	container.SystemHandlers = server.NewSystemHandlers(log, container.RiskDB, container.Scheduler, container.RetentionJob)

	log.Info().
		Str("retention_schedule", cfg.Maintenance.Schedule).
		Str("db_schedule", cfg.Maintenance.DBSchedule).
		Int("retention_days", cfg.Maintenance.RetentionDays).
		Bool("archive", archiver != nil).
		Msg("Maintenance jobs registered")
	return nil
}
