package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/riskguard/internal/database"
	"github.com/aristath/riskguard/internal/scheduler"
)

// JobRunner executes a job outside its schedule
type JobRunner interface {
	RunNow(job scheduler.Job) error
}

// SystemHandlers handles system monitoring and maintenance endpoints
type SystemHandlers struct {
	log          zerolog.Logger
	startupTime  time.Time
	db           *database.DB
	runner       JobRunner
	retentionJob scheduler.Job

	// cpuSample is replaceable in tests
	cpuSample func() (float64, float64)
}

// NewSystemHandlers creates a new system handlers instance.
// runner and retentionJob may be nil; the trigger endpoint then reports 503.
func NewSystemHandlers(
	log zerolog.Logger,
	db *database.DB,
	runner JobRunner,
	retentionJob scheduler.Job,
) *SystemHandlers {
	h := &SystemHandlers{
		log:          log.With().Str("service", "system").Logger(),
		startupTime:  time.Now(),
		db:           db,
		runner:       runner,
		retentionJob: retentionJob,
	}
	h.cpuSample = h.getSystemStats
	return h
}

// DatabaseStatus describes the health of the risk database
type DatabaseStatus struct {
	Name    string          `json:"name"`
	Healthy bool            `json:"healthy"`
	Error   string          `json:"error,omitempty"`
	Stats   *database.Stats `json:"stats,omitempty"`
}

// SystemStatusResponse represents the system status response
type SystemStatusResponse struct {
	Status      string          `json:"status"`
	UptimeHours float64         `json:"uptime_hours"`
	CPUPercent  float64         `json:"cpu_percent"`
	RAMPercent  float64         `json:"ram_percent"`
	Goroutines  int             `json:"goroutines"`
	GoVersion   string          `json:"go_version"`
	Database    *DatabaseStatus `json:"database,omitempty"`
	LastCheck   string          `json:"last_check"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.cpuSample()

	response := SystemStatusResponse{
		Status:      "healthy",
		UptimeHours: time.Since(h.startupTime).Hours(),
		CPUPercent:  cpuPercent,
		RAMPercent:  ramPercent,
		Goroutines:  runtime.NumGoroutine(),
		GoVersion:   runtime.Version(),
		LastCheck:   time.Now().Format(time.RFC3339),
	}

	if h.db != nil {
		response.Database = h.databaseStatus(r.Context())
		if !response.Database.Healthy {
			response.Status = "degraded"
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

func (h *SystemHandlers) databaseStatus(ctx context.Context) *DatabaseStatus {
	status := &DatabaseStatus{Name: h.db.Name(), Healthy: true}

	if err := h.db.QuickCheck(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Database quick check failed")
		status.Healthy = false
		status.Error = err.Error()
		return status
	}

	stats, err := h.db.GetStats()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get database statistics")
		return status
	}
	status.Stats = stats
	return status
}

// HandleTriggerRetention runs the risk event retention job immediately
// POST /api/system/jobs/retention
func (h *SystemHandlers) HandleTriggerRetention(w http.ResponseWriter, r *http.Request) {
	if h.runner == nil || h.retentionJob == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "error",
			"message": "Retention job not registered",
		})
		return
	}

	if err := h.runner.RunNow(h.retentionJob); err != nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"job":     h.retentionJob.Name(),
			"message": err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"job":    h.retentionJob.Name(),
	})
}

// getSystemStats calculates CPU and RAM usage percentages
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	// Sample over 100ms to keep the endpoint responsive
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
