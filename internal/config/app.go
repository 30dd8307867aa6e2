package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/membank/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"MEMBANK_RUNTIME_PATH" envDefault:".membank"`

	// Storage backend: "file" (tier-partitioned JSON files) or "sqlite"
	Backend string `env:"MEMBANK_BACKEND" envDefault:"file"`

	// Lifecycle policy
	RetentionDays         int  `env:"MEMBANK_RETENTION_DAYS" envDefault:"90"`
	CompressionThreshold  int  `env:"MEMBANK_COMPRESSION_THRESHOLD" envDefault:"5"`
	CapacityLimit         int  `env:"MEMBANK_CAPACITY_LIMIT" envDefault:"1000"`
	OptimizeIntervalHours int  `env:"MEMBANK_OPTIMIZE_INTERVAL_HOURS" envDefault:"24"`
	ScheduleOptimizer     bool `env:"MEMBANK_SCHEDULE_OPTIMIZER" envDefault:"true"`

	// Context assembly
	MaxContextTokens int `env:"MEMBANK_MAX_CONTEXT_TOKENS" envDefault:"8000"`

	// Backups
	MaxBackups       int  `env:"MEMBANK_MAX_BACKUPS" envDefault:"10"`
	BackupOnShutdown bool `env:"MEMBANK_BACKUP_ON_SHUTDOWN" envDefault:"false"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse app config")
	}
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetMemoryRoot() string {
	return filepath.Join(c.RuntimePath, "memory")
}

func (c AppConfig) GetBackupRoot() string {
	return filepath.Join(c.RuntimePath, "backups")
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "membank.db")
}

func (c AppConfig) OptimizeInterval() time.Duration {
	return time.Duration(c.OptimizeIntervalHours) * time.Hour
}

// IsDebug reads the debug toggle outside the parsed config so the flag can be
// honored before config parsing happens.
func IsDebug() bool {
	return os.Getenv("MEMBANK_DEBUG") == "1" || os.Getenv("MEMBANK_DEBUG") == "true"
}
