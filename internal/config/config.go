// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/aristath/riskguard/internal/modules/risk"
	"github.com/aristath/riskguard/pkg/formulas"
)

// Config holds application configuration
type Config struct {
	DataDir     string // Base directory for the risk database (always absolute)
	LogLevel    string
	Port        int
	DevMode     bool
	Risk        RiskConfig
	Maintenance MaintenanceConfig
}

// RiskConfig holds the ceilings and evaluation settings for the aggregator
type RiskConfig struct {
	Limits         risk.Limits
	PeriodsPerYear float64
	ParallelChecks bool
	LimitsFile     string // optional YAML file of named limit profiles
	LimitsProfile  string // profile selected from LimitsFile
}

// MaintenanceConfig holds retention and archive settings for stored risk events
type MaintenanceConfig struct {
	RetentionDays int
	Schedule      string // cron expression or descriptor, e.g. "@daily"
	DBSchedule    string // integrity check, disk space and VACUUM
	ArchiveBucket string // S3 bucket; archiving is skipped when empty
	ArchivePrefix string
}

// Load reads configuration from environment variables.
// Limits are resolved in order: built-in defaults, the selected profile from
// RISK_LIMITS_FILE, then individual RISK_MAX_* variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("RISKGUARD_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Risk: RiskConfig{
			Limits:         risk.DefaultLimits(),
			PeriodsPerYear: getEnvAsFloat("RISK_PERIODS_PER_YEAR", formulas.TradingDaysPerYear),
			ParallelChecks: getEnvAsBool("RISK_PARALLEL_CHECKS", false),
			LimitsFile:     getEnv("RISK_LIMITS_FILE", ""),
			LimitsProfile:  getEnv("RISK_LIMITS_PROFILE", DefaultProfile),
		},
		Maintenance: MaintenanceConfig{
			RetentionDays: getEnvAsInt("RISK_EVENTS_RETENTION_DAYS", 90),
			Schedule:      getEnv("RISK_MAINTENANCE_SCHEDULE", "@daily"),
			DBSchedule:    getEnv("RISK_DB_MAINTENANCE_SCHEDULE", "@weekly"),
			ArchiveBucket: getEnv("RISK_ARCHIVE_BUCKET", ""),
			ArchivePrefix: getEnv("RISK_ARCHIVE_PREFIX", "risk-events/"),
		},
	}

	if cfg.Risk.LimitsFile != "" {
		profiles, err := LoadLimitProfiles(cfg.Risk.LimitsFile)
		if err != nil {
			return nil, err
		}
		limits, ok := profiles[cfg.Risk.LimitsProfile]
		if !ok {
			return nil, fmt.Errorf("limit profile %q not found in %s", cfg.Risk.LimitsProfile, cfg.Risk.LimitsFile)
		}
		cfg.Risk.Limits = limits
	}

	l := &cfg.Risk.Limits
	l.MaxLeverage = getEnvAsFloat("RISK_MAX_LEVERAGE", l.MaxLeverage)
	l.MaxCorrelationRisk = getEnvAsFloat("RISK_MAX_CORRELATION_RISK", l.MaxCorrelationRisk)
	l.MaxPortfolioVolatility = getEnvAsFloat("RISK_MAX_PORTFOLIO_VOLATILITY", l.MaxPortfolioVolatility)
	l.MaxJumpRisk = getEnvAsFloat("RISK_MAX_JUMP_RISK", l.MaxJumpRisk)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DatabasePath returns the location of the risk events database
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "risk.db")
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if err := c.Risk.Limits.Validate(); err != nil {
		return fmt.Errorf("invalid risk configuration: %w", err)
	}
	if c.Risk.PeriodsPerYear <= 0 {
		return fmt.Errorf("RISK_PERIODS_PER_YEAR must be positive, got %v", c.Risk.PeriodsPerYear)
	}
	if c.Maintenance.RetentionDays < 0 {
		return fmt.Errorf("RISK_EVENTS_RETENTION_DAYS must not be negative, got %d", c.Maintenance.RetentionDays)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
