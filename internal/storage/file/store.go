// Package file implements the tier-partitioned flat-file block store: one
// subdirectory per tier, one JSON file per block, fronted by an in-memory
// cache owned by the Store instance.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/pkg/log"
)

const blockExt = ".json"

type Store struct {
	root string

	// The reference model is single-writer; the mutex only keeps the cache
	// map safe against the scheduler goroutine. File-level races stay
	// last-write-wins.
	mu    sync.RWMutex
	cache map[string]*core.MemoryBlock
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create memory root: %w", err)
	}
	return &Store{
		root:  root,
		cache: make(map[string]*core.MemoryBlock),
	}, nil
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) tierDir(tier core.Tier) string {
	return filepath.Join(s.root, string(tier))
}

func (s *Store) blockPath(tier core.Tier, id string) string {
	return filepath.Join(s.tierDir(tier), id+blockExt)
}

func (s *Store) Store(ctx context.Context, block *core.MemoryBlock) (*core.MemoryBlock, error) {
	if !block.Tier.Valid() {
		return nil, &core.ValidationError{
			Subject:  "memory block",
			Problems: []string{fmt.Sprintf("unknown tier %q", block.Tier)},
		}
	}

	b := block.Clone()
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}

	now := time.Now().UTC()
	if b.Metadata.Created.IsZero() {
		b.Metadata.Created = now
	}
	if b.Metadata.Updated.IsZero() {
		b.Metadata.Updated = b.Metadata.Created
	}
	b.Metadata.RelevanceScore = core.ClampScore(b.Metadata.RelevanceScore)

	if err := s.writeBlock(b); err != nil {
		return nil, err
	}
	// An upsert may change the tier; the id must live in exactly one partition
	for _, tier := range core.AllTiers {
		if tier == b.Tier {
			continue
		}
		if err := os.Remove(s.blockPath(tier, b.ID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("remove old partition file for %s: %w", b.ID, err)
		}
	}

	s.mu.Lock()
	s.cache[b.ID] = b
	s.mu.Unlock()

	log.FromCtx(ctx).Debug().Str("id", b.ID).Str("tier", string(b.Tier)).Msg("stored memory block")
	return b.Clone(), nil
}

func (s *Store) Retrieve(ctx context.Context, id string) (*core.MemoryBlock, error) {
	s.mu.Lock()
	if b, ok := s.cache[id]; ok {
		b.Metadata.AccessCount++
		cp := b.Clone()
		s.mu.Unlock()
		// Write-through so access counts survive a restart
		if err := s.writeBlock(cp); err != nil {
			return nil, err
		}
		return cp, nil
	}
	s.mu.Unlock()

	b, err := s.load(id)
	if err != nil {
		return nil, err
	}
	b.Metadata.AccessCount++
	if err := s.writeBlock(b); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[id] = b
	s.mu.Unlock()

	return b.Clone(), nil
}

func (s *Store) Update(ctx context.Context, id, content string, patch *core.MetadataPatch) (*core.MemoryBlock, error) {
	b, err := s.load(id)
	if err != nil {
		return nil, err
	}

	b.Content = content
	if patch != nil {
		if patch.RelevanceScore != nil {
			b.Metadata.RelevanceScore = core.ClampScore(*patch.RelevanceScore)
		}
		if patch.Tags != nil {
			b.Metadata.Tags = append([]string(nil), patch.Tags...)
		}
		for k, v := range patch.Extra {
			if b.Metadata.Extra == nil {
				b.Metadata.Extra = make(map[string]any)
			}
			b.Metadata.Extra[k] = v
		}
	}
	b.Metadata.Updated = time.Now().UTC()
	b.Metadata.AccessCount++

	if err := s.writeBlock(b); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[id] = b
	s.mu.Unlock()

	log.FromCtx(ctx).Debug().Str("id", id).Msg("updated memory block")
	return b.Clone(), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	b, err := s.load(id)
	if err != nil {
		return err
	}

	if err := os.Remove(s.blockPath(b.Tier, id)); err != nil {
		return fmt.Errorf("delete block %s: %w", id, err)
	}

	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()

	log.FromCtx(ctx).Debug().Str("id", id).Msg("deleted memory block")
	return nil
}

// Archive moves a block to the archival partition. The transition is one-way;
// archiving an already-archival block is a no-op.
func (s *Store) Archive(ctx context.Context, id string) (*core.MemoryBlock, error) {
	b, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if b.Tier == core.TierArchival {
		return b.Clone(), nil
	}

	oldPath := s.blockPath(b.Tier, id)
	b.Tier = core.TierArchival
	b.Metadata.Updated = time.Now().UTC()

	if err := s.writeBlock(b); err != nil {
		return nil, err
	}
	if err := os.Remove(oldPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove old partition file for %s: %w", id, err)
	}

	s.mu.Lock()
	s.cache[id] = b
	s.mu.Unlock()

	log.FromCtx(ctx).Debug().Str("id", id).Msg("archived memory block")
	return b.Clone(), nil
}

func (s *Store) Touch(ctx context.Context, id string) error {
	b, err := s.load(id)
	if err != nil {
		return err
	}
	b.Metadata.AccessCount++
	if err := s.writeBlock(b); err != nil {
		return err
	}
	s.mu.Lock()
	s.cache[id] = b
	s.mu.Unlock()
	return nil
}

func (s *Store) ListTier(ctx context.Context, tier core.Tier) ([]*core.MemoryBlock, error) {
	if !tier.Valid() {
		return nil, &core.ValidationError{
			Subject:  "tier filter",
			Problems: []string{fmt.Sprintf("unknown tier %q", tier)},
		}
	}

	entries, err := os.ReadDir(s.tierDir(tier))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list tier %s: %w", tier, err)
	}

	logger := log.FromCtx(ctx)
	var blocks []*core.MemoryBlock
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != blockExt {
			continue
		}
		b, err := s.readBlock(filepath.Join(s.tierDir(tier), e.Name()))
		if err != nil {
			// One corrupt file must not sink the whole scan
			logger.Warn().Err(err).Str("file", e.Name()).Msg("skipping unreadable block file")
			continue
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func (s *Store) Close() error {
	return nil
}

// load finds a block by id without bumping its access count, preferring the
// cache and falling back to a scan of all tier partitions.
func (s *Store) load(id string) (*core.MemoryBlock, error) {
	s.mu.RLock()
	if b, ok := s.cache[id]; ok {
		cp := b.Clone()
		s.mu.RUnlock()
		return cp, nil
	}
	s.mu.RUnlock()

	for _, tier := range core.AllTiers {
		path := s.blockPath(tier, id)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return s.readBlock(path)
	}
	return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
}

func (s *Store) readBlock(path string) (*core.MemoryBlock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read block file %s: %w", path, err)
	}
	var b core.MemoryBlock
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode block file %s: %w", path, err)
	}
	return &b, nil
}

func (s *Store) writeBlock(b *core.MemoryBlock) error {
	dir := s.tierDir(b.Tier)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create tier partition %s: %w", b.Tier, err)
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode block %s: %w", b.ID, err)
	}
	if err := os.WriteFile(s.blockPath(b.Tier, b.ID), data, 0644); err != nil {
		return fmt.Errorf("write block %s: %w", b.ID, err)
	}
	return nil
}
