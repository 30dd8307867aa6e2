package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/sandevgo/membank/internal/config"
	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/internal/service/assembler"
	"github.com/sandevgo/membank/internal/service/backup"
	"github.com/sandevgo/membank/internal/service/optimizer"
	"github.com/sandevgo/membank/internal/service/orchestrator"
	"github.com/sandevgo/membank/internal/service/ranker"
	"github.com/sandevgo/membank/internal/storage/file"
	"github.com/sandevgo/membank/internal/storage/sqlite"
	"github.com/sandevgo/membank/internal/transport/mcpserver"
	"github.com/sandevgo/membank/pkg/log"
	"github.com/sandevgo/membank/pkg/srv"
)

// engineHandle bundles a fully wired, initialized engine with its config and
// the store handle that must be closed when the command finishes.
type engineHandle struct {
	Engine *orchestrator.Orchestrator
	Config *config.AppConfig
	store  core.BlockStore
}

// newEngine builds the whole stack for a one-shot CLI command: env, config,
// storage backend, services, then Initialize.
func newEngine(ctx context.Context) (*engineHandle, error) {
	if err := initEnv(ctx, config.NewAppConfig(ctx).GetRuntimePath()); err != nil {
		return nil, err
	}

	cfg := config.NewAppConfig(ctx)
	store, err := initStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	engine, _ := buildOrchestrator(ctx, cfg, store)
	if _, err := engine.Initialize(ctx, nil); err != nil {
		store.Close()
		return nil, err
	}

	return &engineHandle{Engine: engine, Config: cfg, store: store}, nil
}

func (h *engineHandle) Close(ctx context.Context) {
	logger := log.FromCtx(ctx)
	if err := h.Engine.Shutdown(ctx, h.Config.BackupOnShutdown); err != nil {
		logger.Error().Err(err).Msg("engine shutdown failed")
	}
	if err := h.store.Close(); err != nil {
		logger.Error().Err(err).Msg("store close failed")
	}
}

func buildOrchestrator(ctx context.Context, cfg *config.AppConfig, store core.BlockStore) (*orchestrator.Orchestrator, *optimizer.Optimizer) {
	r := ranker.New(store)
	usage := orchestrator.NewUsageTracker()

	backups, err := backup.NewManager(store, cfg.GetBackupRoot(), cfg.MaxBackups, usage)
	if err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to initialize backup manager")
	}

	opt := optimizer.New(store, r, optimizer.Config{
		RetentionDays:        cfg.RetentionDays,
		CompressionThreshold: cfg.CompressionThreshold,
		CapacityLimit:        cfg.CapacityLimit,
	})

	return orchestrator.New(store, r, assembler.New(store, r), opt, backups, usage), opt
}

// NewServices wires the long-running mode: storage, engine, the optimizer
// scheduler and the MCP stdio transport.
func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	if err := initEnv(ctx, config.NewAppConfig(ctx).GetRuntimePath()); err != nil {
		logger.Fatal().Err(err).Msg("failed to init env")
	}

	// 1. Configuration
	cfg := config.NewAppConfig(ctx)

	// 2. Storage
	store, err := initStorage(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// 3. Engine. Its shutdown cleanup is registered before the store's so a
	// shutdown backup still has a live store to read from.
	engine, opt := buildOrchestrator(ctx, cfg, store)
	if _, err := engine.Initialize(ctx, nil); err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize memory engine")
	}
	services = append(services, srv.NewCleanup(func() error {
		return engine.Shutdown(ctx, cfg.BackupOnShutdown)
	}))
	services = append(services, srv.NewCleanup(store.Close))

	// 4. Background optimization
	if cfg.ScheduleOptimizer {
		services = append(services, optimizer.NewScheduler(opt, cfg.OptimizeInterval()))
	}

	// 5. MCP transport
	services = append(services, mcpserver.NewServer(engine))

	return services
}

func initStorage(ctx context.Context, cfg *config.AppConfig) (core.BlockStore, error) {
	switch cfg.Backend {
	case "sqlite":
		db, err := sqlite.NewDB(ctx, cfg.GetDatabasePath())
		if err != nil {
			return nil, err
		}
		return sqlite.NewStore(db), nil
	default:
		return file.NewStore(cfg.GetMemoryRoot())
	}
}

func initEnv(ctx context.Context, runtimePath string) error {
	logger := log.FromCtx(ctx)
	envFile := filepath.Join(runtimePath, ".env")

	if _, err := os.Stat(envFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		logger.Warn().Err(err).Str("path", envFile).Msg("failed to load .env file")
		return err
	}

	logger.Debug().Str("path", envFile).Msg("loaded .env file")
	return nil
}
