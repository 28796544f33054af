// Package config holds the service settings. The CLI binds them to flags and
// environment variables; this package owns defaults and validation.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all service settings.
type Config struct {
	DatabasePath    string        `name:"db" env:"DATABASE_PATH" default:"data/traffic-counts.db" help:"Path to the sqlite database."`
	DataDir         string        `name:"data-dir" env:"DATA_DIR" default:"data/drops" help:"Directory scanned for JSONL drop files."`
	HTTPAddr        string        `name:"http-addr" env:"HTTP_ADDR" default:":8080" help:"Listen address for health and metrics endpoints."`
	LogLevel        string        `name:"log-level" env:"LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Process log level."`
	LogFormat       string        `name:"log-format" env:"LOG_FORMAT" default:"json" enum:"json,text" help:"Process log format."`
	Workers         int           `name:"workers" env:"WORKERS" default:"4" help:"Maximum site batches imported in parallel."`
	ScanInterval    time.Duration `name:"scan-interval" env:"SCAN_INTERVAL" default:"30s" help:"How often the importer rescans the drop directory."`
	CleanupFiles    bool          `name:"cleanup-files" env:"CLEANUP_FILES" help:"Remove drop files after a fully successful import."`
	ShutdownTimeout time.Duration `name:"shutdown-timeout" env:"SHUTDOWN_TIMEOUT" default:"10s" help:"Grace period for draining HTTP connections."`
}

// maxWorkers caps the per-site fan-out; sqlite serializes writers anyway.
const maxWorkers = 64

// Validate checks cross-field constraints. Kong calls it after binding.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path is required")
	}
	if c.DataDir == "" {
		return errors.New("data directory is required")
	}
	if c.Workers < 1 || c.Workers > maxWorkers {
		return fmt.Errorf("workers must be in [1,%d], got %d", maxWorkers, c.Workers)
	}
	if c.ScanInterval <= 0 {
		return fmt.Errorf("scan interval must be positive, got %s", c.ScanInterval)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}
