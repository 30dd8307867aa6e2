package assembler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/internal/service/ranker"
	"github.com/sandevgo/membank/internal/storage/file"
)

func newAssembler(t *testing.T) (*Assembler, *file.Store) {
	t.Helper()
	store, err := file.NewStore(t.TempDir())
	require.NoError(t, err)
	return New(store, ranker.New(store)), store
}

func TestAssemble_IncludesAllSections(t *testing.T) {
	a, store := newAssembler(t)
	ctx := context.Background()

	_, err := store.Store(ctx, &core.MemoryBlock{
		Tier:     core.TierCore,
		Content:  "User prefers concise answers.",
		Metadata: core.Metadata{RelevanceScore: 0.9},
	})
	require.NoError(t, err)
	_, err = store.Store(ctx, &core.MemoryBlock{
		Tier:    core.TierPersistent,
		Content: "Current project stores data locally for privacy.",
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateSessionContext(ctx, "goal", "finish the storage design"))

	payload, err := a.Assemble(ctx, "privacy storage", Options{
		IncludeCoreMemory:     true,
		IncludeSessionContext: true,
		IncludeRelevantMemory: true,
		MaxTokens:             4000,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, payload.SystemPrompt)
	assert.NotEmpty(t, payload.ToolDefinitions)
	require.Len(t, payload.CoreMemory, 1)
	assert.Equal(t, "User prefers concise answers.", payload.CoreMemory[0].Content)
	assert.Equal(t, "finish the storage design", payload.SessionContext["goal"])
	require.Len(t, payload.RelevantMemory, 1)
	assert.Equal(t, core.TierPersistent, payload.RelevantMemory[0].Tier)
}

func TestAssemble_RespectsTokenBudget(t *testing.T) {
	a, store := newAssembler(t)
	ctx := context.Background()

	long := strings.Repeat("This sentence pads out a very long memory block. ", 200)
	for i := 0; i < 5; i++ {
		_, err := store.Store(ctx, &core.MemoryBlock{Tier: core.TierCore, Content: long})
		require.NoError(t, err)
		_, err = store.Store(ctx, &core.MemoryBlock{Tier: core.TierPersistent, Content: long + " storage"})
		require.NoError(t, err)
	}
	require.NoError(t, store.UpdateSessionContext(ctx, "notes", long))

	const maxTokens = 1000
	payload, err := a.Assemble(ctx, "storage", Options{
		IncludeCoreMemory:     true,
		IncludeSessionContext: true,
		IncludeRelevantMemory: true,
		MaxTokens:             maxTokens,
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, payload.TokensUsed, maxTokens)
	assert.Equal(t, maxTokens, payload.TokenBudget)
}

func TestAssemble_SummarizesFirstOversizedItem(t *testing.T) {
	a, store := newAssembler(t)
	ctx := context.Background()

	long := "Leading sentence that should survive. " + strings.Repeat("Filler sentence follows here. ", 300)
	_, err := store.Store(ctx, &core.MemoryBlock{Tier: core.TierCore, Content: long})
	require.NoError(t, err)

	payload, err := a.Assemble(ctx, "anything", Options{
		IncludeCoreMemory: true,
		MaxTokens:         400, // core share = 100 tokens = 400 chars
	})
	require.NoError(t, err)

	require.Len(t, payload.CoreMemory, 1)
	assert.True(t, payload.CoreMemory[0].Summarized)
	assert.True(t, strings.HasPrefix(payload.CoreMemory[0].Content, "Leading sentence that should survive."))
	assert.Less(t, len(payload.CoreMemory[0].Content), len(long))
}

func TestAssemble_SectionsCanBeExcluded(t *testing.T) {
	a, store := newAssembler(t)
	ctx := context.Background()

	_, err := store.Store(ctx, &core.MemoryBlock{Tier: core.TierCore, Content: "core fact"})
	require.NoError(t, err)

	payload, err := a.Assemble(ctx, "task", Options{MaxTokens: 2000})
	require.NoError(t, err)

	assert.Nil(t, payload.CoreMemory)
	assert.Nil(t, payload.SessionContext)
	assert.Nil(t, payload.RelevantMemory)
	assert.NotEmpty(t, payload.SystemPrompt)
}

func TestRenderText_ContainsSectionHeaders(t *testing.T) {
	p := &Payload{
		SystemPrompt:    "prompt",
		CoreMemory:      []Item{{Content: "core fact"}},
		SessionContext:  map[string]string{"goal": "ship"},
		RelevantMemory:  []Item{{Content: "relevant fact"}},
		ToolDefinitions: "tools",
	}
	text := p.RenderText()
	assert.Contains(t, text, "## Core Memory")
	assert.Contains(t, text, "## Session Context")
	assert.Contains(t, text, "## Relevant Memory")
	assert.Contains(t, text, "- core fact")
	assert.Contains(t, text, "- goal: ship")
}
