package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/internal/service/assembler"
	"github.com/sandevgo/membank/internal/service/backup"
	"github.com/sandevgo/membank/internal/service/optimizer"
	"github.com/sandevgo/membank/internal/service/orchestrator"
	"github.com/sandevgo/membank/internal/service/ranker"
	"github.com/sandevgo/membank/internal/storage/file"
)

// buildEngine wires the full stack on a throwaway file store, the same way
// the CLI does it.
func buildEngine(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()

	store, err := file.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r := ranker.New(store)
	usage := orchestrator.NewUsageTracker()
	backups, err := backup.NewManager(store, t.TempDir(), 5, usage)
	require.NoError(t, err)

	opt := optimizer.New(store, r, optimizer.Config{
		RetentionDays:        90,
		CompressionThreshold: 5,
		CapacityLimit:        1000,
	})

	return orchestrator.New(store, r, assembler.New(store, r), opt, backups, usage)
}

func TestEngine_FullLifecycle(t *testing.T) {
	engine := buildEngine(t)
	ctx := context.Background()

	_, err := engine.Initialize(ctx, map[string]string{
		"current_task": "wire the payments provider",
	})
	require.NoError(t, err)

	// Populate each working tier
	coreBlock, err := engine.StoreBlock(ctx, &core.MemoryBlock{
		Tier:    core.TierCore,
		Content: "User is building a payments platform in Go.",
	})
	require.NoError(t, err)

	persistent, err := engine.StoreBlock(ctx, &core.MemoryBlock{
		Tier:    core.TierPersistent,
		Content: "The payments provider sandbox needs a webhook secret per environment.",
		Metadata: core.Metadata{
			Tags: []string{"payments", "config"},
		},
	})
	require.NoError(t, err)

	_, err = engine.StoreBlock(ctx, &core.MemoryBlock{
		Tier:    core.TierSession,
		Content: "Webhook retries fail locally because the tunnel drops idle connections.",
	})
	require.NoError(t, err)

	// Search finds the payments fact
	results, err := engine.Search(ctx, "payments webhook", ranker.SearchOptions{MinScore: 0.1})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	found := false
	for _, res := range results {
		if res.Block.ID == persistent.ID {
			found = true
		}
	}
	assert.True(t, found, "expected the payments block among results")

	// Context assembly includes all sections within budget
	payload, err := engine.AssembleContext(ctx, "debug webhook retries", assembler.Options{
		IncludeCoreMemory:     true,
		IncludeSessionContext: true,
		IncludeRelevantMemory: true,
		MaxTokens:             2000,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, payload.TokensUsed, payload.TokenBudget)
	require.NotEmpty(t, payload.CoreMemory)
	assert.Equal(t, coreBlock.ID, payload.CoreMemory[0].ID)
	assert.Contains(t, payload.SessionContext, "current_task")
	assert.NotEmpty(t, payload.RelevantMemory)

	// Optimization runs clean on a young corpus
	report, err := engine.Optimize(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.CleanedUp)
	assert.Zero(t, report.Archived)

	// Backup, wipe, restore
	entry, err := engine.CreateBackup(ctx, backup.CreateOptions{Description: "before wipe"})
	require.NoError(t, err)
	require.Equal(t, 3, entry.Metadata.BlockCount)

	stats, err := engine.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalBlocks)

	for _, id := range []string{coreBlock.ID, persistent.ID} {
		require.NoError(t, engine.DeleteBlock(ctx, id))
	}
	sessionResults, err := engine.Search(ctx, "tunnel", ranker.SearchOptions{Tiers: []core.Tier{core.TierSession}})
	require.NoError(t, err)
	for _, res := range sessionResults {
		require.NoError(t, engine.DeleteBlock(ctx, res.Block.ID))
	}

	restore, err := engine.RestoreBackup(ctx, entry.ID, backup.RestoreOptions{})
	require.NoError(t, err)
	assert.True(t, restore.Valid)
	assert.Equal(t, 3, restore.Restored)

	stats, err = engine.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalBlocks)

	require.NoError(t, engine.Shutdown(ctx, false))
}
