// Package orchestrator is the single entry point external callers use. It
// composes the store, ranker, assembler, optimizer and backup manager,
// enforces initialization order and records operation usage.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/internal/service/assembler"
	"github.com/sandevgo/membank/internal/service/backup"
	"github.com/sandevgo/membank/internal/service/optimizer"
	"github.com/sandevgo/membank/internal/service/ranker"
	"github.com/sandevgo/membank/pkg/log"
	"github.com/sandevgo/membank/pkg/tokens"
)

type Orchestrator struct {
	store     core.BlockStore
	ranker    *ranker.Ranker
	assembler *assembler.Assembler
	optimizer *optimizer.Optimizer
	backups   *backup.Manager
	usage     *UsageTracker

	mu          sync.Mutex
	initialized bool
	sessionID   string
}

func New(store core.BlockStore, r *ranker.Ranker, a *assembler.Assembler, o *optimizer.Optimizer, b *backup.Manager, usage *UsageTracker) *Orchestrator {
	return &Orchestrator{
		store:     store,
		ranker:    r,
		assembler: a,
		optimizer: o,
		backups:   b,
		usage:     usage,
	}
}

// InitReport describes the outcome of Initialize.
type InitReport struct {
	SessionID  string            `json:"session_id"`
	TierCounts map[core.Tier]int `json:"tier_counts"`
	SeededKeys []string          `json:"seeded_keys,omitempty"`
}

// Initialize seeds the session context, verifies every tier partition is
// readable and marks the engine ready. All other operations fail with
// ErrNotInitialized until this succeeds.
func (o *Orchestrator) Initialize(ctx context.Context, sessionSeed map[string]string) (*InitReport, error) {
	start := time.Now().UTC()

	report := &InitReport{
		SessionID:  uuid.NewString(),
		TierCounts: make(map[core.Tier]int),
	}

	for _, tier := range core.AllTiers {
		blocks, err := o.store.ListTier(ctx, tier)
		if err != nil {
			return nil, fmt.Errorf("validate %s partition: %w", tier, err)
		}
		report.TierCounts[tier] = len(blocks)
	}

	for key, content := range sessionSeed {
		if err := o.store.UpdateSessionContext(ctx, key, content); err != nil {
			return nil, fmt.Errorf("seed session context %q: %w", key, err)
		}
		report.SeededKeys = append(report.SeededKeys, key)
	}

	o.mu.Lock()
	o.initialized = true
	o.sessionID = report.SessionID
	o.mu.Unlock()

	o.usage.Record("initialize", start, 0, false)
	log.FromCtx(ctx).Info().Str("session", report.SessionID).Msg("memory engine initialized")
	return report, nil
}

// Shutdown optionally takes a final backup (best effort), clears transient
// usage records and marks the engine uninitialized.
func (o *Orchestrator) Shutdown(ctx context.Context, backupFirst bool) error {
	logger := log.FromCtx(ctx)

	if backupFirst {
		if _, err := o.backups.CreateBackup(ctx, backup.CreateOptions{
			Description:      "shutdown backup",
			IncludeAnalytics: true,
		}); err != nil {
			// Shutdown proceeds regardless; this path is best effort
			logger.Error().Err(err).Msg("shutdown backup failed")
		}
	}

	o.usage.Reset()

	o.mu.Lock()
	o.initialized = false
	o.sessionID = ""
	o.mu.Unlock()

	logger.Info().Msg("memory engine shut down")
	return nil
}

func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessionID
}

func (o *Orchestrator) ensureInitialized() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.initialized {
		return core.ErrNotInitialized
	}
	return nil
}

// record logs a failed operation; CRUD errors are logged here and re-raised
// to the caller.
func (o *Orchestrator) record(ctx context.Context, op string, err error) {
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Str("op", op).Msg("operation failed")
	}
}

func (o *Orchestrator) StoreBlock(ctx context.Context, block *core.MemoryBlock) (*core.MemoryBlock, error) {
	if err := o.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	stored, err := o.store.Store(ctx, block)
	o.usage.Record("store", start, len(block.Content), err != nil)
	o.record(ctx, "store", err)
	return stored, err
}

func (o *Orchestrator) RetrieveBlock(ctx context.Context, id string) (*core.MemoryBlock, error) {
	if err := o.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	b, err := o.store.Retrieve(ctx, id)
	size := 0
	if b != nil {
		size = len(b.Content)
	}
	o.usage.Record("retrieve", start, size, err != nil)
	o.record(ctx, "retrieve", err)
	return b, err
}

func (o *Orchestrator) UpdateBlock(ctx context.Context, id, content string, patch *core.MetadataPatch) (*core.MemoryBlock, error) {
	if err := o.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	b, err := o.store.Update(ctx, id, content, patch)
	o.usage.Record("update", start, len(content), err != nil)
	o.record(ctx, "update", err)
	return b, err
}

func (o *Orchestrator) DeleteBlock(ctx context.Context, id string) error {
	if err := o.ensureInitialized(); err != nil {
		return err
	}
	start := time.Now().UTC()
	err := o.store.Delete(ctx, id)
	o.usage.Record("delete", start, 0, err != nil)
	o.record(ctx, "delete", err)
	return err
}

func (o *Orchestrator) ArchiveBlock(ctx context.Context, id string) (*core.MemoryBlock, error) {
	if err := o.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	b, err := o.store.Archive(ctx, id)
	o.usage.Record("archive", start, 0, err != nil)
	o.record(ctx, "archive", err)
	return b, err
}

func (o *Orchestrator) Search(ctx context.Context, query string, opts ranker.SearchOptions) ([]ranker.ScoredBlock, error) {
	if err := o.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	results, err := o.ranker.Search(ctx, query, opts)
	o.usage.Record("search", start, len(query), err != nil)
	o.record(ctx, "search", err)
	return results, err
}

func (o *Orchestrator) AssembleContext(ctx context.Context, task string, opts assembler.Options) (*assembler.Payload, error) {
	if err := o.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	payload, err := o.assembler.Assemble(ctx, task, opts)
	size := 0
	if payload != nil {
		size = payload.TokensUsed
	}
	o.usage.Record("assemble_context", start, size, err != nil)
	o.record(ctx, "assemble_context", err)
	return payload, err
}

func (o *Orchestrator) Optimize(ctx context.Context) (*optimizer.Report, error) {
	if err := o.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	report, err := o.optimizer.Run(ctx)
	o.usage.Record("optimize", start, 0, err != nil)
	o.record(ctx, "optimize", err)
	return report, err
}

func (o *Orchestrator) GetSessionContext(ctx context.Context) (map[string]string, error) {
	if err := o.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	session, err := o.store.SessionContext(ctx)
	o.usage.Record("session_get", start, 0, err != nil)
	o.record(ctx, "session_get", err)
	return session, err
}

func (o *Orchestrator) UpdateSessionContext(ctx context.Context, key, content string) error {
	if err := o.ensureInitialized(); err != nil {
		return err
	}
	start := time.Now().UTC()
	err := o.store.UpdateSessionContext(ctx, key, content)
	o.usage.Record("session_update", start, len(content), err != nil)
	o.record(ctx, "session_update", err)
	return err
}

func (o *Orchestrator) CreateBackup(ctx context.Context, opts backup.CreateOptions) (*backup.ManifestEntry, error) {
	if err := o.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	entry, err := o.backups.CreateBackup(ctx, opts)
	o.usage.Record("backup_create", start, 0, err != nil)
	o.record(ctx, "backup_create", err)
	return entry, err
}

func (o *Orchestrator) RestoreBackup(ctx context.Context, id string, opts backup.RestoreOptions) (*backup.RestoreResult, error) {
	if err := o.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	result, err := o.backups.RestoreBackup(ctx, id, opts)
	o.usage.Record("backup_restore", start, 0, err != nil)
	o.record(ctx, "backup_restore", err)
	return result, err
}

func (o *Orchestrator) ListBackups(ctx context.Context) ([]backup.ManifestEntry, error) {
	if err := o.ensureInitialized(); err != nil {
		return nil, err
	}
	start := time.Now().UTC()
	entries, err := o.backups.ListBackups(ctx)
	o.usage.Record("backup_list", start, 0, err != nil)
	o.record(ctx, "backup_list", err)
	return entries, err
}

func (o *Orchestrator) DeleteBackup(ctx context.Context, id string) error {
	if err := o.ensureInitialized(); err != nil {
		return err
	}
	start := time.Now().UTC()
	err := o.backups.DeleteBackup(ctx, id)
	o.usage.Record("backup_delete", start, 0, err != nil)
	o.record(ctx, "backup_delete", err)
	return err
}

// Stats summarizes the corpus and recorded usage.
type Stats struct {
	SessionID        string            `json:"session_id"`
	TierCounts       map[core.Tier]int `json:"tier_counts"`
	TotalBlocks      int               `json:"total_blocks"`
	CoreMemoryTokens int               `json:"core_memory_tokens"`
	OperationCounts  map[string]int    `json:"operation_counts"`
}

// GetStats reports per-tier block counts and operation usage. The core
// memory token figure uses the exact tokenizer, not the budget estimator.
func (o *Orchestrator) GetStats(ctx context.Context) (*Stats, error) {
	if err := o.ensureInitialized(); err != nil {
		return nil, err
	}

	stats := &Stats{
		SessionID:       o.SessionID(),
		TierCounts:      make(map[core.Tier]int),
		OperationCounts: o.usage.Counts(),
	}

	for _, tier := range core.AllTiers {
		blocks, err := o.store.ListTier(ctx, tier)
		if err != nil {
			return nil, err
		}
		stats.TierCounts[tier] = len(blocks)
		stats.TotalBlocks += len(blocks)
		if tier == core.TierCore {
			for _, b := range blocks {
				stats.CoreMemoryTokens += tokens.Count(b.Content)
			}
		}
	}
	return stats, nil
}
