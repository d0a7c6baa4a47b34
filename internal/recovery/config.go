package recovery

import "time"

// Config controls the sweeper interval, timeout, and batch size.
type Config struct {
	SweepInterval time.Duration
	RunTimeout    time.Duration
	BatchSize     int
}

func DefaultConfig() Config {
	return Config{
		SweepInterval: time.Minute,
		RunTimeout:    30 * time.Minute,
		BatchSize:     50,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}
