package ranker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/internal/storage/file"
)

func newTestStore(t *testing.T) *file.Store {
	t.Helper()
	s, err := file.NewStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func mustStore(t *testing.T, s core.BlockStore, b *core.MemoryBlock) *core.MemoryBlock {
	t.Helper()
	stored, err := s.Store(context.Background(), b)
	require.NoError(t, err)
	return stored
}

func TestScore_KeywordOverlap(t *testing.T) {
	r := New(nil)
	now := time.Now().UTC()

	tests := []struct {
		name    string
		content string
		query   string
		overlap float64
	}{
		{name: "full match", content: "privacy-first local storage", query: "privacy storage", overlap: 1.0},
		{name: "half match", content: "local storage only", query: "privacy storage", overlap: 0.5},
		{name: "no match", content: "completely unrelated", query: "privacy storage", overlap: 0.0},
		{name: "substring of token counts", content: "multistorage setup", query: "storage", overlap: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := &core.MemoryBlock{
				Tier:    core.TierPersistent,
				Content: tt.content,
				Metadata: core.Metadata{
					Created: now.AddDate(-1, 0, 0),
					Updated: now.AddDate(-1, 0, 0),
				},
			}
			// Old block with zero accesses: only overlap and tier terms remain
			want := core.ClampScore(0.4*tt.overlap + 0.10)
			assert.InDelta(t, want, r.Score(block, tt.query, now), 1e-9)
		})
	}
}

func TestScore_AlwaysWithinUnitInterval(t *testing.T) {
	r := New(nil)
	now := time.Now().UTC()
	block := &core.MemoryBlock{
		Tier:    core.TierCore,
		Content: "privacy storage privacy storage",
		Metadata: core.Metadata{
			Created:     now,
			Updated:     now,
			AccessCount: 1000,
		},
	}
	score := r.Score(block, "privacy storage", now)
	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestSearch_FindsCoreBlockForTaskQuery(t *testing.T) {
	store := newTestStore(t)
	r := New(store)
	ctx := context.Background()

	stored := mustStore(t, store, &core.MemoryBlock{
		Tier:     core.TierCore,
		Content:  "Project uses privacy-first local storage",
		Metadata: core.Metadata{Tags: []string{"project"}},
	})

	results, err := r.Search(ctx, "privacy storage", SearchOptions{Limit: 10, MinScore: 0.1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, stored.ID, results[0].Block.ID)
	assert.GreaterOrEqual(t, results[0].Score, 0.1)
}

func TestSearch_MinScoreFiltersResults(t *testing.T) {
	store := newTestStore(t)
	r := New(store)
	ctx := context.Background()

	mustStore(t, store, &core.MemoryBlock{Tier: core.TierPersistent, Content: "database connection pooling notes"})
	mustStore(t, store, &core.MemoryBlock{Tier: core.TierPersistent, Content: "privacy-first storage design"})

	results, err := r.Search(ctx, "privacy storage", SearchOptions{Limit: 10, MinScore: 0.7})
	require.NoError(t, err)
	for _, res := range results {
		assert.GreaterOrEqual(t, res.Score, 0.7)
	}
}

func TestSearch_TierFilter(t *testing.T) {
	store := newTestStore(t)
	r := New(store)
	ctx := context.Background()

	mustStore(t, store, &core.MemoryBlock{Tier: core.TierCore, Content: "storage fact in core"})
	persistent := mustStore(t, store, &core.MemoryBlock{Tier: core.TierPersistent, Content: "storage fact in persistent"})

	results, err := r.Search(ctx, "storage", SearchOptions{
		Tiers: []core.Tier{core.TierPersistent},
		Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, persistent.ID, results[0].Block.ID)
}

func TestSearch_LimitAndDeterministicOrder(t *testing.T) {
	store := newTestStore(t)
	r := New(store)
	ctx := context.Background()

	// Identical content and metadata: scores tie, order must still be stable
	for i := 0; i < 5; i++ {
		mustStore(t, store, &core.MemoryBlock{Tier: core.TierPersistent, Content: "identical storage note"})
	}

	first, err := r.Search(ctx, "storage", SearchOptions{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)

	second, err := r.Search(ctx, "storage", SearchOptions{Limit: 3})
	require.NoError(t, err)
	require.Len(t, second, 3)

	for i := range first {
		assert.Equal(t, first[i].Block.ID, second[i].Block.ID)
	}
}

func TestSearch_BumpsAccessCount(t *testing.T) {
	store := newTestStore(t)
	r := New(store)
	ctx := context.Background()

	stored := mustStore(t, store, &core.MemoryBlock{Tier: core.TierPersistent, Content: "storage note"})

	_, err := r.Search(ctx, "storage", SearchOptions{Limit: 10})
	require.NoError(t, err)

	after, err := store.Retrieve(ctx, stored.ID)
	require.NoError(t, err)
	// One bump from the search, one from this retrieve
	assert.Equal(t, 2, after.Metadata.AccessCount)
}
