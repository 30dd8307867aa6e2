package core

import (
	"context"
)

// BlockStore is the persistence contract for memory blocks and the session
// context map. The flat-file backend is the reference implementation; the
// SQLite backend is a drop-in alternative.
type BlockStore interface {
	// Store persists a block, assigning an id when absent, and returns the
	// stored block. Existing ids are overwritten (upsert).
	Store(ctx context.Context, block *MemoryBlock) (*MemoryBlock, error)

	// Retrieve loads a block by id, bumping its access count.
	Retrieve(ctx context.Context, id string) (*MemoryBlock, error)

	// Update replaces content, merges the metadata patch, bumps the access
	// count and the updated timestamp, and re-persists.
	Update(ctx context.Context, id, content string, patch *MetadataPatch) (*MemoryBlock, error)

	// Delete hard-removes a block.
	Delete(ctx context.Context, id string) error

	// Archive flips a block to the archival tier, relocating its backing
	// record to the archival partition.
	Archive(ctx context.Context, id string) (*MemoryBlock, error)

	// Touch bumps the access count without changing anything else. Used by
	// ranked search, which counts as a read.
	Touch(ctx context.Context, id string) error

	// ListTier returns every block in a tier without bumping access counts.
	ListTier(ctx context.Context, tier Tier) ([]*MemoryBlock, error)

	// SessionContext returns the full key -> text session map.
	SessionContext(ctx context.Context) (map[string]string, error)

	// UpdateSessionContext writes one session context entry.
	UpdateSessionContext(ctx context.Context, key, content string) error

	Close() error
}

// ListAll collects every block across all tiers.
func ListAll(ctx context.Context, s BlockStore) ([]*MemoryBlock, error) {
	var all []*MemoryBlock
	for _, tier := range AllTiers {
		blocks, err := s.ListTier(ctx, tier)
		if err != nil {
			return nil, err
		}
		all = append(all, blocks...)
	}
	return all, nil
}
