package reliability

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/riskguard/internal/database"
)

const (
	// Minimum free space before the job fails
	criticalFreeBytes = 500 << 20
	// Below this the job only warns
	lowFreeBytes = 5 << 30
	// VACUUM once this share of pages sits on the freelist
	vacuumFreelistRatio = 0.25
)

// MaintainedDB is the part of database.DB the maintenance job needs
type MaintainedDB interface {
	HealthCheck(ctx context.Context) error
	GetStats() (*database.Stats, error)
	Vacuum(ctx context.Context) error
	Path() string
}

// DatabaseMaintenanceJob verifies the risk database, checks free disk space
// and reclaims space left behind by retention deletes.
type DatabaseMaintenanceJob struct {
	db        MaintainedDB
	diskUsage func(path string) (*disk.UsageStat, error)
	timeout   time.Duration
	log       zerolog.Logger
}

// NewDatabaseMaintenanceJob creates a new database maintenance job
func NewDatabaseMaintenanceJob(db MaintainedDB, log zerolog.Logger) *DatabaseMaintenanceJob {
	return &DatabaseMaintenanceJob{
		db:        db,
		diskUsage: disk.Usage,
		timeout:   30 * time.Minute,
		log:       log.With().Str("job", "risk_db_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *DatabaseMaintenanceJob) Name() string {
	return "risk_db_maintenance"
}

// Run executes the maintenance job
func (j *DatabaseMaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Msg("CRITICAL: Risk database integrity check failed")
		return fmt.Errorf("risk database integrity check failed: %w", err)
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if err := j.vacuumIfFragmented(ctx); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(start)).
		Msg("Database maintenance completed")
	return nil
}

// checkDiskSpace verifies sufficient disk space is available next to the database
func (j *DatabaseMaintenanceJob) checkDiskSpace() error {
	dir := filepath.Dir(j.db.Path())
	usage, err := j.diskUsage(dir)
	if err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(usage.Free) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	if usage.Free < criticalFreeBytes {
		j.log.Error().
			Float64("available_gb", availableGB).
			Msg("CRITICAL: Insufficient disk space for risk events")
		return fmt.Errorf("only %.2f GB free in %s", availableGB, dir)
	}
	if usage.Free < lowFreeBytes {
		j.log.Warn().
			Float64("available_gb", availableGB).
			Msg("Disk space running low")
	}
	return nil
}

func (j *DatabaseMaintenanceJob) vacuumIfFragmented(ctx context.Context) error {
	stats, err := j.db.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read database statistics: %w", err)
	}
	if stats.PageCount == 0 {
		return nil
	}

	ratio := float64(stats.FreelistCount) / float64(stats.PageCount)
	if ratio < vacuumFreelistRatio {
		j.log.Debug().Float64("freelist_ratio", ratio).Msg("VACUUM not needed")
		return nil
	}

	sizeBefore := float64(stats.PageCount*stats.PageSize) / 1024 / 1024
	if err := j.db.Vacuum(ctx); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	after, err := j.db.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read database statistics: %w", err)
	}
	sizeAfter := float64(after.PageCount*after.PageSize) / 1024 / 1024

	j.log.Info().
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")
	return nil
}
