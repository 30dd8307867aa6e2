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

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/pkg/log"
)

const manifestFile = "manifest.json"

// ManifestEntry indexes one snapshot. The manifest keeps entries newest
// first and is pruned to the configured maximum; pruning deletes the evicted
// snapshot file too, so maxBackups bounds disk, not just the index.
type ManifestEntry struct {
	ID          string       `json:"id"`
	Timestamp   time.Time    `json:"timestamp"`
	Description string       `json:"description,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Metadata    SnapshotMeta `json:"metadata"`
}

func (m *Manager) manifestPath() string {
	return filepath.Join(m.dir, manifestFile)
}

// ListBackups returns the manifest, newest first.
func (m *Manager) ListBackups(ctx context.Context) ([]ManifestEntry, error) {
	return m.readManifest()
}

// DeleteBackup removes a manifest entry and its snapshot file.
func (m *Manager) DeleteBackup(ctx context.Context, id string) error {
	entries, err := m.readManifest()
	if err != nil {
		return err
	}

	idx := -1
	for i, e := range entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: backup %s", core.ErrNotFound, id)
	}

	entries = append(entries[:idx], entries[idx+1:]...)
	if err := m.writeManifest(entries); err != nil {
		return err
	}
	if err := os.Remove(m.snapshotPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove snapshot %s: %w", id, err)
	}

	log.FromCtx(ctx).Info().Str("id", id).Msg("backup deleted")
	return nil
}

func (m *Manager) prependManifestEntry(ctx context.Context, entry ManifestEntry) error {
	entries, err := m.readManifest()
	if err != nil {
		return err
	}

	entries = append([]ManifestEntry{entry}, entries...)

	// Prune to the retention bound, dropping evicted snapshot files
	logger := log.FromCtx(ctx)
	for _, evicted := range entries[min(len(entries), m.maxBackups):] {
		if err := os.Remove(m.snapshotPath(evicted.ID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Str("id", evicted.ID).Msg("failed to remove evicted snapshot")
		}
	}
	if len(entries) > m.maxBackups {
		entries = entries[:m.maxBackups]
	}

	return m.writeManifest(entries)
}

func (m *Manager) readManifest() ([]ManifestEntry, error) {
	data, err := os.ReadFile(m.manifestPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return entries, nil
}

func (m *Manager) writeManifest(entries []ManifestEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(m.manifestPath(), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
