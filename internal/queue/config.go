package queue

import (
	"time"

	"github.com/smallbiznis/opspulse/internal/config"
)

// Config controls the worker pool.
type Config struct {
	Concurrency   int
	PollInterval  time.Duration
	Lease         time.Duration
	JobTimeout    time.Duration
	ReapInterval  time.Duration
	ReapBatchSize int
}

func DefaultConfig() Config {
	return Config{
		Concurrency:   2,
		PollInterval:  time.Second,
		Lease:         5 * time.Minute,
		JobTimeout:    4 * time.Minute,
		ReapInterval:  30 * time.Second,
		ReapBatchSize: 100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.Lease <= 0 {
		c.Lease = defaults.Lease
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	// A job must finish before its lease can be claimed by another worker.
	if c.JobTimeout >= c.Lease {
		c.JobTimeout = c.Lease - c.Lease/5
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = defaults.ReapInterval
	}
	if c.ReapBatchSize <= 0 {
		c.ReapBatchSize = defaults.ReapBatchSize
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Concurrency:  cfg.Queue.Concurrency,
		PollInterval: cfg.Queue.PollInterval,
		Lease:        cfg.Queue.Lease,
		JobTimeout:   cfg.Queue.JobTimeout,
	}.withDefaults()
}
