// Package backup snapshots the block store to immutable files under a
// dedicated backup root, indexed by a bounded, recency-ordered manifest.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/pkg/log"
)

// AnalyticsProvider supplies the optional usage-analytics blob bundled into
// snapshots and restored from them. The orchestrator's usage tracker is the
// one implementation.
type AnalyticsProvider interface {
	ExportAnalytics() (json.RawMessage, error)
	ImportAnalytics(data json.RawMessage) error
}

type Manager struct {
	store      core.BlockStore
	dir        string
	maxBackups int
	analytics  AnalyticsProvider
}

func NewManager(store core.BlockStore, dir string, maxBackups int, analytics AnalyticsProvider) (*Manager, error) {
	if maxBackups <= 0 {
		maxBackups = 10
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup root: %w", err)
	}
	return &Manager{store: store, dir: dir, maxBackups: maxBackups, analytics: analytics}, nil
}

// SnapshotMeta summarizes a snapshot's contents for the manifest.
type SnapshotMeta struct {
	BlockCount        int   `json:"block_count"`
	SizeBytes         int64 `json:"size_bytes"`
	IncludesArchival  bool  `json:"includes_archival"`
	IncludesAnalytics bool  `json:"includes_analytics"`
}

// Snapshot is one immutable backup file.
type Snapshot struct {
	ID          string             `json:"id"`
	Timestamp   time.Time          `json:"timestamp"`
	Description string             `json:"description,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	Metadata    SnapshotMeta       `json:"metadata"`
	Memory      []core.MemoryBlock `json:"memory"`
	Analytics   json.RawMessage    `json:"analytics,omitempty"`
}

type CreateOptions struct {
	IncludeArchival  bool
	IncludeAnalytics bool
	Description      string
	Tags             []string
}

type RestoreOptions struct {
	ValidateOnly      bool
	OverwriteExisting bool
}

// RestoreResult reports validation state and replay counts.
type RestoreResult struct {
	Valid    bool     `json:"valid"`
	Problems []string `json:"problems,omitempty"`
	Restored int      `json:"restored"`
	Skipped  int      `json:"skipped"`
}

func (m *Manager) snapshotPath(id string) string {
	return filepath.Join(m.dir, id+".json")
}

// CreateBackup snapshots every stored block (optionally excluding archival),
// writes one immutable file and prepends a manifest entry, pruning the
// manifest to the configured maximum.
func (m *Manager) CreateBackup(ctx context.Context, opts CreateOptions) (*ManifestEntry, error) {
	tiers := []core.Tier{core.TierCore, core.TierPersistent, core.TierSession}
	if opts.IncludeArchival {
		tiers = append(tiers, core.TierArchival)
	}

	snap := &Snapshot{
		ID:          uuid.NewString(),
		Timestamp:   time.Now().UTC(),
		Description: opts.Description,
		Tags:        opts.Tags,
	}
	for _, tier := range tiers {
		blocks, err := m.store.ListTier(ctx, tier)
		if err != nil {
			return nil, fmt.Errorf("snapshot tier %s: %w", tier, err)
		}
		for _, b := range blocks {
			snap.Memory = append(snap.Memory, *b.Clone())
		}
	}

	if opts.IncludeAnalytics && m.analytics != nil {
		blob, err := m.analytics.ExportAnalytics()
		if err != nil {
			// Analytics are a bonus; never fail a backup over them
			log.FromCtx(ctx).Warn().Err(err).Msg("analytics export failed, snapshot proceeds without")
		} else {
			snap.Analytics = blob
		}
	}

	snap.Metadata = SnapshotMeta{
		BlockCount:        len(snap.Memory),
		IncludesArchival:  opts.IncludeArchival,
		IncludesAnalytics: len(snap.Analytics) > 0,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	snap.Metadata.SizeBytes = int64(len(data))

	// Re-encode with the final size recorded
	data, err = json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(m.snapshotPath(snap.ID), data, 0644); err != nil {
		return nil, fmt.Errorf("write snapshot %s: %w", snap.ID, err)
	}

	entry := ManifestEntry{
		ID:          snap.ID,
		Timestamp:   snap.Timestamp,
		Description: snap.Description,
		Tags:        snap.Tags,
		Metadata:    snap.Metadata,
	}
	if err := m.prependManifestEntry(ctx, entry); err != nil {
		return nil, err
	}

	log.FromCtx(ctx).Info().Str("id", snap.ID).Int("blocks", snap.Metadata.BlockCount).Msg("backup created")
	return &entry, nil
}

// RestoreBackup loads and validates a snapshot, then (unless ValidateOnly)
// replays its blocks into the store. A non-empty store is refused without
// OverwriteExisting. Per-block failures are logged, counted and skipped.
func (m *Manager) RestoreBackup(ctx context.Context, id string, opts RestoreOptions) (*RestoreResult, error) {
	snap, err := m.loadSnapshot(id)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	result.Problems = validateSnapshot(snap)
	result.Valid = len(result.Problems) == 0

	if opts.ValidateOnly {
		return result, nil
	}
	if !result.Valid {
		return result, &core.ValidationError{Subject: "backup snapshot", Problems: result.Problems}
	}

	existing, err := core.ListAll(ctx, m.store)
	if err != nil {
		return nil, fmt.Errorf("inspect store before restore: %w", err)
	}
	if len(existing) > 0 && !opts.OverwriteExisting {
		return nil, fmt.Errorf("%w: %d blocks present, pass overwrite to restore anyway", core.ErrStoreNotEmpty, len(existing))
	}
	existingIDs := make(map[string]bool, len(existing))
	for _, b := range existing {
		existingIDs[b.ID] = true
	}

	logger := log.FromCtx(ctx)
	for i := range snap.Memory {
		b := snap.Memory[i]
		if existingIDs[b.ID] && !opts.OverwriteExisting {
			result.Skipped++
			continue
		}
		if _, err := m.store.Store(ctx, &b); err != nil {
			logger.Warn().Err(err).Str("id", b.ID).Msg("restore failed for block")
			result.Skipped++
			continue
		}
		result.Restored++
	}

	if len(snap.Analytics) > 0 && m.analytics != nil {
		if err := m.analytics.ImportAnalytics(snap.Analytics); err != nil {
			logger.Warn().Err(err).Msg("analytics restore failed")
		}
	}

	logger.Info().Str("id", id).Int("restored", result.Restored).Int("skipped", result.Skipped).Msg("backup restored")
	return result, nil
}

func (m *Manager) loadSnapshot(id string) (*Snapshot, error) {
	data, err := os.ReadFile(m.snapshotPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: backup %s", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", id, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &core.ValidationError{Subject: "backup snapshot", Problems: []string{"not valid JSON: " + err.Error()}}
	}
	return &snap, nil
}

// validateSnapshot checks the structural contract: required top-level fields
// plus the per-block invariants every stored block satisfies.
func validateSnapshot(snap *Snapshot) []string {
	var problems []string
	if snap.ID == "" {
		problems = append(problems, "missing snapshot id")
	}
	if snap.Timestamp.IsZero() {
		problems = append(problems, "missing snapshot timestamp")
	}
	for i := range snap.Memory {
		if err := core.ValidateBlock(&snap.Memory[i]); err != nil {
			var verr *core.ValidationError
			if errors.As(err, &verr) {
				for _, p := range verr.Problems {
					problems = append(problems, fmt.Sprintf("memory[%d]: %s", i, p))
				}
			} else {
				problems = append(problems, fmt.Sprintf("memory[%d]: %v", i, err))
			}
		}
	}
	return problems
}
