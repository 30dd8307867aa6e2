package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/membank/internal/core"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewDB(context.Background(), filepath.Join(t.TempDir(), "membank.db"))
	require.NoError(t, err)
	s := NewStore(db)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_StoreRetrieveRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	stored, err := s.Store(ctx, &core.MemoryBlock{
		Tier:    core.TierPersistent,
		Content: "deploys run from the release branch",
		Metadata: core.Metadata{
			RelevanceScore: 0.6,
			Tags:           []string{"process", "ci"},
			Extra:          map[string]any{"source": "runbook"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	got, err := s.Retrieve(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Content, got.Content)
	assert.Equal(t, []string{"process", "ci"}, got.Metadata.Tags)
	assert.Equal(t, "runbook", got.Metadata.Extra["source"])
	assert.InDelta(t, 0.6, got.Metadata.RelevanceScore, 1e-9)
	assert.Equal(t, 1, got.Metadata.AccessCount)
	assert.Equal(t, stored.Metadata.Created.UnixNano(), got.Metadata.Created.UnixNano())
}

func TestSQLite_UpdateDeleteArchive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	stored, err := s.Store(ctx, &core.MemoryBlock{Tier: core.TierSession, Content: "draft"})
	require.NoError(t, err)

	score := 0.9
	updated, err := s.Update(ctx, stored.ID, "final", &core.MetadataPatch{RelevanceScore: &score})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Content)
	assert.InDelta(t, 0.9, updated.Metadata.RelevanceScore, 1e-9)
	assert.Equal(t, 1, updated.Metadata.AccessCount)

	archived, err := s.Archive(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, core.TierArchival, archived.Tier)

	inTier, err := s.ListTier(ctx, core.TierArchival)
	require.NoError(t, err)
	require.Len(t, inTier, 1)
	assert.Equal(t, stored.ID, inTier[0].ID)

	require.NoError(t, s.Delete(ctx, stored.ID))
	_, err = s.Retrieve(ctx, stored.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, stored.ID), core.ErrNotFound)
}

func TestSQLite_ListTierValidatesFilter(t *testing.T) {
	s := newStore(t)

	_, err := s.ListTier(context.Background(), "bogus")
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSQLite_SessionContextUpsert(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpdateSessionContext(ctx, "focus", "auth refactor"))
	require.NoError(t, s.UpdateSessionContext(ctx, "focus", "auth refactor, phase 2"))
	require.NoError(t, s.UpdateSessionContext(ctx, "blockers", "waiting on review"))

	got, err := s.SessionContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"focus":    "auth refactor, phase 2",
		"blockers": "waiting on review",
	}, got)

	err = s.UpdateSessionContext(ctx, "", "x")
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
}
