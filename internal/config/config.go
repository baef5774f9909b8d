// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package config loads spletl's run configuration: a YAML file with
// SPLETL_-prefixed environment variable overrides layered on top, the same
// two-layer shape a project.yaml plus env-driven settings follow.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DB holds the loader adapter name and connection settings.
type DB struct {
	Adapter  string `yaml:"adapter"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DSN      string `yaml:"dsn"`
}

// Delta holds batching policy for DELTA-mode runs.
type Delta struct {
	BatchArchives int `yaml:"batch_archives"`
}

// Config is spletl's full run configuration.
type Config struct {
	DB                 DB     `yaml:"db"`
	DownloadPath       string `yaml:"download_path"`
	IntermediateFormat string `yaml:"intermediate_format"`
	ChunkSize          int    `yaml:"chunk_size"`
	ChunkBytes         int64  `yaml:"chunk_bytes"`
	WorkerCount        int    `yaml:"worker_count"`
	QuarantinePath     string `yaml:"quarantine_path"`
	ScratchRoot        string `yaml:"scratch_root"`
	Delta              Delta  `yaml:"delta"`
	LogFormat          string `yaml:"log_format"`
}

// Default returns the baseline configuration before any file or environment
// overrides are applied.
func Default() *Config {
	return &Config{
		DB: DB{
			Adapter: "postgres",
			Port:    5432,
		},
		DownloadPath:       "./downloads",
		IntermediateFormat: "csv",
		ChunkSize:          50_000,
		ChunkBytes:         256 << 20,
		WorkerCount:        0, // 0 means "one worker per CPU", resolved by the orchestrator
		QuarantinePath:     "./quarantine",
		ScratchRoot:        "./runs",
		Delta: Delta{
			BatchArchives: 1,
		},
		LogFormat: "json",
	}
}

// Load reads path (if it exists) over the defaults, then applies
// SPLETL_-prefixed environment variable overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays every SPLETL_-prefixed environment variable
// onto cfg, so every configuration key can be overridden from the
// environment under that one prefix.
func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	num64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}

	str("SPLETL_DB_ADAPTER", &cfg.DB.Adapter)
	str("SPLETL_DB_HOST", &cfg.DB.Host)
	num("SPLETL_DB_PORT", &cfg.DB.Port)
	str("SPLETL_DB_NAME", &cfg.DB.Name)
	str("SPLETL_DB_USER", &cfg.DB.User)
	str("SPLETL_DB_PASSWORD", &cfg.DB.Password)
	str("SPLETL_DB_DSN", &cfg.DB.DSN)
	str("SPLETL_DOWNLOAD_PATH", &cfg.DownloadPath)
	str("SPLETL_INTERMEDIATE_FORMAT", &cfg.IntermediateFormat)
	num("SPLETL_CHUNK_SIZE", &cfg.ChunkSize)
	num64("SPLETL_CHUNK_BYTES", &cfg.ChunkBytes)
	num("SPLETL_WORKER_COUNT", &cfg.WorkerCount)
	str("SPLETL_QUARANTINE_PATH", &cfg.QuarantinePath)
	str("SPLETL_SCRATCH_ROOT", &cfg.ScratchRoot)
	num("SPLETL_DELTA_BATCH_ARCHIVES", &cfg.Delta.BatchArchives)
	str("SPLETL_LOG_FORMAT", &cfg.LogFormat)
}

// Validate fails fast on a missing or invalid setting, per the
// ConfigurationError policy: configuration errors must surface before any
// I/O is attempted.
func (c *Config) Validate() error {
	if c.DB.Adapter == "" {
		return fmt.Errorf("config: db.adapter is required")
	}
	if c.DB.DSN == "" && (c.DB.Host == "" || c.DB.Name == "") {
		return fmt.Errorf("config: either db.dsn or db.host/db.name must be set")
	}
	switch c.IntermediateFormat {
	case "csv", "parquet":
	default:
		return fmt.Errorf("config: intermediate_format must be csv or parquet, got %q", c.IntermediateFormat)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("config: chunk_size must be positive")
	}
	if c.ChunkBytes <= 0 {
		return fmt.Errorf("config: chunk_bytes must be positive")
	}
	if c.Delta.BatchArchives <= 0 {
		return fmt.Errorf("config: delta.batch_archives must be positive")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("config: log_format must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// DSN builds a PostgreSQL connection string from the DB fields when DSN
// itself is not set directly.
func (c *Config) DSN() string {
	if c.DB.DSN != "" {
		return c.DB.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}
