package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/internal/storage/file"
)

type stubAnalytics struct {
	exported json.RawMessage
	imported json.RawMessage
}

func (s *stubAnalytics) ExportAnalytics() (json.RawMessage, error) {
	return s.exported, nil
}

func (s *stubAnalytics) ImportAnalytics(data json.RawMessage) error {
	s.imported = data
	return nil
}

func newManager(t *testing.T, maxBackups int) (*Manager, *file.Store, *stubAnalytics) {
	t.Helper()
	store, err := file.NewStore(t.TempDir())
	require.NoError(t, err)
	analytics := &stubAnalytics{exported: json.RawMessage(`{"ops":7}`)}
	m, err := NewManager(store, t.TempDir(), maxBackups, analytics)
	require.NoError(t, err)
	return m, store, analytics
}

func seedBlocks(t *testing.T, store core.BlockStore, n int, tier core.Tier) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		b, err := store.Store(context.Background(), &core.MemoryBlock{
			Tier:    tier,
			Content: fmt.Sprintf("memory fact number %d", i),
		})
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}
	return ids
}

func TestCreateBackup_WritesSnapshotAndManifest(t *testing.T) {
	m, store, _ := newManager(t, 5)
	ctx := context.Background()
	seedBlocks(t, store, 3, core.TierPersistent)

	entry, err := m.CreateBackup(ctx, CreateOptions{Description: "nightly", Tags: []string{"auto"}})
	require.NoError(t, err)
	assert.Equal(t, 3, entry.Metadata.BlockCount)

	entries, err := m.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, "nightly", entries[0].Description)

	_, err = os.Stat(filepath.Join(m.dir, entry.ID+".json"))
	assert.NoError(t, err)
}

func TestCreateBackup_ArchivalExcludedByDefault(t *testing.T) {
	m, store, _ := newManager(t, 5)
	ctx := context.Background()
	seedBlocks(t, store, 2, core.TierPersistent)
	seedBlocks(t, store, 2, core.TierArchival)

	entry, err := m.CreateBackup(ctx, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Metadata.BlockCount)

	withArchival, err := m.CreateBackup(ctx, CreateOptions{IncludeArchival: true})
	require.NoError(t, err)
	assert.Equal(t, 4, withArchival.Metadata.BlockCount)
}

func TestRestoreBackup_ValidateOnlyLeavesStoreUntouched(t *testing.T) {
	m, store, _ := newManager(t, 5)
	ctx := context.Background()
	seedBlocks(t, store, 2, core.TierPersistent)

	entry, err := m.CreateBackup(ctx, CreateOptions{})
	require.NoError(t, err)

	// Empty the store so a real restore would be observable
	for _, b := range mustListAll(t, store) {
		require.NoError(t, store.Delete(ctx, b.ID))
	}

	result, err := m.RestoreBackup(ctx, entry.ID, RestoreOptions{ValidateOnly: true})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Problems)
	assert.Equal(t, 0, result.Restored)
	assert.Empty(t, mustListAll(t, store))
}

func TestRestoreBackup_RoundTrip(t *testing.T) {
	m, store, analytics := newManager(t, 5)
	ctx := context.Background()
	ids := seedBlocks(t, store, 3, core.TierPersistent)

	entry, err := m.CreateBackup(ctx, CreateOptions{IncludeAnalytics: true})
	require.NoError(t, err)

	for _, id := range ids {
		require.NoError(t, store.Delete(ctx, id))
	}

	result, err := m.RestoreBackup(ctx, entry.ID, RestoreOptions{})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 3, result.Restored)
	assert.Equal(t, 0, result.Skipped)
	assert.Len(t, mustListAll(t, store), 3)
	assert.JSONEq(t, `{"ops":7}`, string(analytics.imported))
}

func TestRestoreBackup_RefusesNonEmptyStoreWithoutOverwrite(t *testing.T) {
	m, store, _ := newManager(t, 5)
	ctx := context.Background()
	seedBlocks(t, store, 1, core.TierPersistent)

	entry, err := m.CreateBackup(ctx, CreateOptions{})
	require.NoError(t, err)

	_, err = m.RestoreBackup(ctx, entry.ID, RestoreOptions{})
	assert.ErrorIs(t, err, core.ErrStoreNotEmpty)

	result, err := m.RestoreBackup(ctx, entry.ID, RestoreOptions{OverwriteExisting: true})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Restored)
}

func TestRestoreBackup_UnknownID(t *testing.T) {
	m, _, _ := newManager(t, 5)
	_, err := m.RestoreBackup(context.Background(), "no-such-backup", RestoreOptions{})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRestoreBackup_MalformedSnapshotFailsValidation(t *testing.T) {
	m, _, _ := newManager(t, 5)
	ctx := context.Background()

	snap := Snapshot{
		ID: "broken",
		Memory: []core.MemoryBlock{
			{ID: "", Tier: core.TierPersistent, Content: "x"},
			{ID: "b2", Tier: "bogus", Content: "y"},
		},
	}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.snapshotPath("broken"), data, 0644))

	result, err := m.RestoreBackup(ctx, "broken", RestoreOptions{ValidateOnly: true})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Len(t, result.Problems, 3) // missing timestamp + two bad entries
}

func TestManifest_PrunedToMaxAndFilesRemoved(t *testing.T) {
	m, store, _ := newManager(t, 2)
	ctx := context.Background()
	seedBlocks(t, store, 1, core.TierPersistent)

	var entries []*ManifestEntry
	for i := 0; i < 3; i++ {
		e, err := m.CreateBackup(ctx, CreateOptions{Description: fmt.Sprintf("snap-%d", i)})
		require.NoError(t, err)
		entries = append(entries, e)
	}

	listed, err := m.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, entries[2].ID, listed[0].ID) // newest first
	assert.Equal(t, entries[1].ID, listed[1].ID)

	// Evicted snapshot file is gone along with its index entry
	_, err = os.Stat(m.snapshotPath(entries[0].ID))
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteBackup_RemovesEntryAndFile(t *testing.T) {
	m, store, _ := newManager(t, 5)
	ctx := context.Background()
	seedBlocks(t, store, 1, core.TierPersistent)

	entry, err := m.CreateBackup(ctx, CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, m.DeleteBackup(ctx, entry.ID))

	listed, err := m.ListBackups(ctx)
	require.NoError(t, err)
	assert.Empty(t, listed)
	_, err = os.Stat(m.snapshotPath(entry.ID))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, m.DeleteBackup(ctx, entry.ID), core.ErrNotFound)
}

func mustListAll(t *testing.T, store core.BlockStore) []*core.MemoryBlock {
	t.Helper()
	all, err := core.ListAll(context.Background(), store)
	require.NoError(t, err)
	return all
}
