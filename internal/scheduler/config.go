package scheduler

import (
	"time"

	"github.com/smallbiznis/opspulse/internal/config"
)

// Config controls the recurring timers.
type Config struct {
	DefaultInterval time.Duration
	Snapshot        string
	AlertEvaluation string
	// EnabledJobs limits which recurring jobs start. Empty enables all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		DefaultInterval: 5 * time.Minute,
		Snapshot:        "@hourly",
		AlertEvaluation: "*/5 * * * *",
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = defaults.DefaultInterval
	}
	if c.Snapshot == "" {
		c.Snapshot = defaults.Snapshot
	}
	if c.AlertEvaluation == "" {
		c.AlertEvaluation = defaults.AlertEvaluation
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		DefaultInterval: cfg.Schedules.DefaultInterval,
		Snapshot:        cfg.Schedules.Snapshot,
		AlertEvaluation: cfg.Schedules.AlertEvaluation,
		EnabledJobs:     cfg.Schedules.EnabledJobs,
	}.withDefaults()
}
