package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Global
		Database
		Import
		Logging
		Audit
		Tasks
	}

	HTTP struct {
		Port int32
		Host string
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path     string
		LogLevel string // gorm logger level: silent, error, warn, info
	}
	Import struct {
		ChunkSize        int           // Records per transaction (default: 500)
		MaxRecords       int           // Largest accepted bundle (default: 50000)
		MaxBodyBytes     int64         // Upper bound on request body size
		StaleAfter       time.Duration // In-progress sessions idle this long are failed by the sweeper
		PayloadRetention time.Duration // Staged payloads of unfinished sessions are kept this long
		SweepEnabled     bool
		SweepSchedule    string // Cron format: "*/5 * * * *" = every 5 minutes
	}
	Logging struct {
		Level  string
		Format string // console or json
	}
	Audit struct {
		RetentionDays int // Days to keep audit events (default: 30)
	}
	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8190)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 5)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("database_log_level", "warn")

	// Import pipeline defaults
	v.SetDefault("import_chunk_size", DefaultChunkSize)
	v.SetDefault("import_max_records", DefaultMaxRecords)
	v.SetDefault("import_max_body_bytes", 32<<20)
	v.SetDefault("import_stale_after", "10m")
	v.SetDefault("import_payload_retention", "168h")
	v.SetDefault("import_sweep_enabled", true)
	v.SetDefault("import_sweep_schedule", "*/5 * * * *")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("audit_retention_days", 30)

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path:     v.GetString("DATABASE_PATH"),
			LogLevel: v.GetString("DATABASE_LOG_LEVEL"),
		},
		Import: Import{
			ChunkSize:        v.GetInt("IMPORT_CHUNK_SIZE"),
			MaxRecords:       v.GetInt("IMPORT_MAX_RECORDS"),
			MaxBodyBytes:     v.GetInt64("IMPORT_MAX_BODY_BYTES"),
			StaleAfter:       v.GetDuration("IMPORT_STALE_AFTER"),
			PayloadRetention: v.GetDuration("IMPORT_PAYLOAD_RETENTION"),
			SweepEnabled:     v.GetBool("IMPORT_SWEEP_ENABLED"),
			SweepSchedule:    v.GetString("IMPORT_SWEEP_SCHEDULE"),
		},
		Logging: Logging{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Audit: Audit{
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
	}
}

// Validate checks the import limits for consistency.
func (c *Config) Validate() error {
	if c.Import.ChunkSize <= 0 {
		return fmt.Errorf("IMPORT_CHUNK_SIZE must be positive, got %d", c.Import.ChunkSize)
	}
	if c.Import.MaxRecords <= 0 {
		return fmt.Errorf("IMPORT_MAX_RECORDS must be positive, got %d", c.Import.MaxRecords)
	}
	if c.Import.ChunkSize > c.Import.MaxRecords {
		return fmt.Errorf("IMPORT_CHUNK_SIZE (%d) must not exceed IMPORT_MAX_RECORDS (%d)",
			c.Import.ChunkSize, c.Import.MaxRecords)
	}
	if c.Import.StaleAfter <= 0 {
		return fmt.Errorf("IMPORT_STALE_AFTER must be positive, got %s", c.Import.StaleAfter)
	}
	return nil
}
