package config

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied by NewConfig to zero fields.
const (
	DefaultDeadline        = 10 * time.Second
	DefaultNumWorkers      = 4
	DefaultShutdownGrace   = 2 * time.Second
	DefaultMaxTraceRecords = 10000
)

// Config holds everything needed to construct and provision a cluster.
type Config struct {
	Deadline         time.Duration
	NumWorkers       int
	NumDevices       int
	DisableOptimizer bool

	LogFormat string
	LogLevel  string

	// TraceStreamURL is the socket.io endpoint run summaries are published
	// to. Empty disables publishing.
	TraceStreamURL string
	// ShutdownGrace bounds how long Shutdown waits for queue runners.
	ShutdownGrace time.Duration
	// MaxTraceRecords bounds the trace kept for one step; repeats past it
	// are folded into earlier records.
	MaxTraceRecords int
}

// NewConfig fills defaults and validates the result.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Deadline == 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.NumWorkers == 0 {
		cfg.NumWorkers = DefaultNumWorkers
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	if cfg.MaxTraceRecords == 0 {
		cfg.MaxTraceRecords = DefaultMaxTraceRecords
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Deadline <= 0 {
		errs = append(errs, fmt.Errorf("deadline must be positive, got %s", c.Deadline))
	}
	if c.NumWorkers < 1 {
		errs = append(errs, fmt.Errorf("worker count must be at least 1, got %d", c.NumWorkers))
	}
	if c.NumDevices < 0 {
		errs = append(errs, fmt.Errorf("device count must not be negative, got %d", c.NumDevices))
	}
	if c.ShutdownGrace < 0 {
		errs = append(errs, fmt.Errorf("shutdown grace must not be negative, got %s", c.ShutdownGrace))
	}
	if c.MaxTraceRecords < 0 {
		errs = append(errs, fmt.Errorf("max trace records must not be negative, got %d", c.MaxTraceRecords))
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
