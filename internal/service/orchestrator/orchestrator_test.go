package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/internal/service/assembler"
	"github.com/sandevgo/membank/internal/service/backup"
	"github.com/sandevgo/membank/internal/service/optimizer"
	"github.com/sandevgo/membank/internal/service/ranker"
	"github.com/sandevgo/membank/internal/storage/file"
)

func newOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	store, err := file.NewStore(t.TempDir())
	require.NoError(t, err)

	r := ranker.New(store)
	usage := NewUsageTracker()
	backups, err := backup.NewManager(store, t.TempDir(), 3, usage)
	require.NoError(t, err)

	opt := optimizer.New(store, r, optimizer.Config{
		RetentionDays:        90,
		CompressionThreshold: 5,
		CapacityLimit:        1000,
	})

	return New(store, r, assembler.New(store, r), opt, backups, usage)
}

func TestOrchestrator_OperationsFailBeforeInitialize(t *testing.T) {
	o := newOrchestrator(t)
	ctx := context.Background()

	_, err := o.StoreBlock(ctx, &core.MemoryBlock{Tier: core.TierCore, Content: "x"})
	assert.ErrorIs(t, err, core.ErrNotInitialized)

	_, err = o.RetrieveBlock(ctx, "some-id")
	assert.ErrorIs(t, err, core.ErrNotInitialized)

	_, err = o.Search(ctx, "anything", ranker.SearchOptions{})
	assert.ErrorIs(t, err, core.ErrNotInitialized)

	_, err = o.GetStats(ctx)
	assert.ErrorIs(t, err, core.ErrNotInitialized)
}

func TestOrchestrator_InitializeReportsTiersAndSeedsSession(t *testing.T) {
	o := newOrchestrator(t)
	ctx := context.Background()

	report, err := o.Initialize(ctx, map[string]string{"goal": "ship the beta"})
	require.NoError(t, err)
	assert.NotEmpty(t, report.SessionID)
	assert.Equal(t, report.SessionID, o.SessionID())
	assert.Len(t, report.TierCounts, len(core.AllTiers))
	assert.Equal(t, []string{"goal"}, report.SeededKeys)

	session, err := o.GetSessionContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ship the beta", session["goal"])
}

func TestOrchestrator_BlockLifecycle(t *testing.T) {
	o := newOrchestrator(t)
	ctx := context.Background()

	_, err := o.Initialize(ctx, nil)
	require.NoError(t, err)

	stored, err := o.StoreBlock(ctx, &core.MemoryBlock{
		Tier:    core.TierPersistent,
		Content: "the project uses local file storage",
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	got, err := o.RetrieveBlock(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Content, got.Content)

	archived, err := o.ArchiveBlock(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TierArchival, archived.Tier)

	require.NoError(t, o.DeleteBlock(ctx, stored.ID))
	_, err = o.RetrieveBlock(ctx, stored.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestOrchestrator_UsageCountsAndStats(t *testing.T) {
	o := newOrchestrator(t)
	ctx := context.Background()

	_, err := o.Initialize(ctx, nil)
	require.NoError(t, err)

	_, err = o.StoreBlock(ctx, &core.MemoryBlock{Tier: core.TierCore, Content: "user prefers terse answers"})
	require.NoError(t, err)
	_, err = o.Search(ctx, "terse", ranker.SearchOptions{})
	require.NoError(t, err)
	_, err = o.ListBackups(ctx)
	require.NoError(t, err)

	stats, err := o.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TierCounts[core.TierCore])
	assert.Equal(t, 1, stats.TotalBlocks)
	assert.Positive(t, stats.CoreMemoryTokens)
	assert.Equal(t, 1, stats.OperationCounts["store"])
	assert.Equal(t, 1, stats.OperationCounts["search"])
	assert.Equal(t, 1, stats.OperationCounts["backup_list"])
	assert.Equal(t, 1, stats.OperationCounts["initialize"])
}

func TestOrchestrator_ShutdownUninitializesAndResetsUsage(t *testing.T) {
	o := newOrchestrator(t)
	ctx := context.Background()

	_, err := o.Initialize(ctx, nil)
	require.NoError(t, err)
	_, err = o.StoreBlock(ctx, &core.MemoryBlock{Tier: core.TierSession, Content: "scratch note"})
	require.NoError(t, err)

	require.NoError(t, o.Shutdown(ctx, true))
	assert.Empty(t, o.SessionID())
	assert.Empty(t, o.usage.Counts())

	_, err = o.RetrieveBlock(ctx, "anything")
	assert.ErrorIs(t, err, core.ErrNotInitialized)

	// Shutdown backup landed in the manifest
	_, err = o.Initialize(ctx, nil)
	require.NoError(t, err)
	entries, err := o.ListBackups(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "shutdown backup", entries[0].Description)
}
