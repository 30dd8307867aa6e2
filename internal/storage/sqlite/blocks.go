package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/pkg/log"
)

// Store implements core.BlockStore on SQLite. Unlike the file backend there
// is no separate cache; the database page cache does that job.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
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

	tags, err := json.Marshal(b.Metadata.Tags)
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	extra, err := marshalExtra(b.Metadata.Extra)
	if err != nil {
		return nil, err
	}

	query := `INSERT INTO blocks (id, tier, content, created_at, updated_at, relevance_score, tags, access_count, extra)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT (id) DO UPDATE SET
	            tier = excluded.tier, content = excluded.content,
	            created_at = excluded.created_at, updated_at = excluded.updated_at,
	            relevance_score = excluded.relevance_score, tags = excluded.tags,
	            access_count = excluded.access_count, extra = excluded.extra`
	_, err = s.db.ExecContext(ctx, query,
		b.ID, string(b.Tier), b.Content,
		b.Metadata.Created.Format(time.RFC3339Nano), b.Metadata.Updated.Format(time.RFC3339Nano),
		b.Metadata.RelevanceScore, string(tags), b.Metadata.AccessCount, extra,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert block: %w", err)
	}

	log.FromCtx(ctx).Debug().Str("id", b.ID).Str("tier", string(b.Tier)).Msg("stored memory block")
	return b, nil
}

func (s *Store) Retrieve(ctx context.Context, id string) (*core.MemoryBlock, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.Touch(ctx, id); err != nil {
		return nil, err
	}
	b.Metadata.AccessCount++
	return b, nil
}

func (s *Store) Update(ctx context.Context, id, content string, patch *core.MetadataPatch) (*core.MemoryBlock, error) {
	b, err := s.load(ctx, id)
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

	return s.Store(ctx, b)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blocks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	log.FromCtx(ctx).Debug().Str("id", id).Msg("deleted memory block")
	return nil
}

func (s *Store) Archive(ctx context.Context, id string) (*core.MemoryBlock, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Tier == core.TierArchival {
		return b, nil
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE blocks SET tier = ?, updated_at = ? WHERE id = ?`,
		string(core.TierArchival), now.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to archive block: %w", err)
	}
	b.Tier = core.TierArchival
	b.Metadata.Updated = now
	return b, nil
}

func (s *Store) Touch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE blocks SET access_count = access_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to touch block: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return nil
}

func (s *Store) ListTier(ctx context.Context, tier core.Tier) ([]*core.MemoryBlock, error) {
	if !tier.Valid() {
		return nil, &core.ValidationError{
			Subject:  "tier filter",
			Problems: []string{fmt.Sprintf("unknown tier %q", tier)},
		}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tier, content, created_at, updated_at, relevance_score, tags, access_count, extra
		 FROM blocks WHERE tier = ? ORDER BY id`, string(tier))
	if err != nil {
		return nil, fmt.Errorf("failed to list tier %s: %w", tier, err)
	}
	defer rows.Close()

	var blocks []*core.MemoryBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) load(ctx context.Context, id string) (*core.MemoryBlock, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tier, content, created_at, updated_at, relevance_score, tags, access_count, extra
		 FROM blocks WHERE id = ?`, id)
	b, err := scanBlock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, id)
	}
	return b, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (*core.MemoryBlock, error) {
	var (
		b               core.MemoryBlock
		tier            string
		created, upd    string
		tagsJS, extraJS string
	)
	if err := row.Scan(&b.ID, &tier, &b.Content, &created, &upd,
		&b.Metadata.RelevanceScore, &tagsJS, &b.Metadata.AccessCount, &extraJS); err != nil {
		return nil, err
	}
	b.Tier = core.Tier(tier)

	var err error
	if b.Metadata.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if b.Metadata.Updated, err = time.Parse(time.RFC3339Nano, upd); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if tagsJS != "" && tagsJS != "null" {
		if err := json.Unmarshal([]byte(tagsJS), &b.Metadata.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	if extraJS != "" && extraJS != "{}" && extraJS != "null" {
		if err := json.Unmarshal([]byte(extraJS), &b.Metadata.Extra); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extra: %w", err)
		}
	}
	return &b, nil
}

func marshalExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("marshal extra: %w", err)
	}
	return string(data), nil
}
