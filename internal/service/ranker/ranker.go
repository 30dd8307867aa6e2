// Package ranker scores memory blocks against a query with lexical
// heuristics and serves ranked search over the block store. There is no
// embedding lookup here on purpose; ranking stays cheap and local.
package ranker

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/pkg/log"
)

// Tier bonuses: highest for core, decreasing through session, persistent,
// archival.
var tierPriority = map[core.Tier]float64{
	core.TierCore:       0.20,
	core.TierSession:    0.15,
	core.TierPersistent: 0.10,
	core.TierArchival:   0.05,
}

type Ranker struct {
	store core.BlockStore
}

func New(store core.BlockStore) *Ranker {
	return &Ranker{store: store}
}

// SearchOptions filter and bound a ranked search.
type SearchOptions struct {
	// Tiers restricts the scan; empty means all tiers.
	Tiers []core.Tier
	// Limit caps the result count; <= 0 falls back to 10.
	Limit int
	// MinScore discards blocks scoring below it.
	MinScore float64
}

// ScoredBlock pairs a block with its relevance for the query.
type ScoredBlock struct {
	Block *core.MemoryBlock
	Score float64
}

// Score computes the lexical relevance of a block for a query:
//
//	0.4*keywordOverlap + recency + accessFrequency + tierPriority
//
// clamped to [0,1]. Recency decays linearly from 0.3 over 30 days of
// updated-age; access frequency adds 0.02 per recorded access, capped at 0.2.
func (r *Ranker) Score(block *core.MemoryBlock, query string, now time.Time) float64 {
	score := 0.4 * keywordOverlap(block.Content, query)

	age := now.Sub(block.Metadata.Updated).Hours() / 24
	if recency := 0.3 - age*0.01; recency > 0 {
		score += recency
	}

	access := float64(block.Metadata.AccessCount) * 0.02
	if access > 0.2 {
		access = 0.2
	}
	score += access

	score += tierPriority[block.Tier]

	return core.ClampScore(score)
}

// Search scans the requested tiers, scores every candidate, filters by
// MinScore, orders by score descending and truncates to Limit. Returned
// blocks count as reads and get their access count bumped.
//
// Ties break deterministically: newer created-timestamp first, then block id
// descending (ULIDs embed creation time, so id order tracks recency too).
func (r *Ranker) Search(ctx context.Context, query string, opts SearchOptions) ([]ScoredBlock, error) {
	tiers := opts.Tiers
	if len(tiers) == 0 {
		tiers = core.AllTiers
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	now := time.Now().UTC()
	var results []ScoredBlock
	for _, tier := range tiers {
		blocks, err := r.store.ListTier(ctx, tier)
		if err != nil {
			return nil, err
		}
		for _, b := range blocks {
			score := r.Score(b, query, now)
			if score < opts.MinScore {
				continue
			}
			results = append(results, ScoredBlock{Block: b, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		ci, cj := results[i].Block.Metadata.Created, results[j].Block.Metadata.Created
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return results[i].Block.ID > results[j].Block.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}

	logger := log.FromCtx(ctx)
	for _, res := range results {
		if err := r.store.Touch(ctx, res.Block.ID); err != nil {
			// A block deleted mid-search is a benign race, not a failure
			logger.Debug().Err(err).Str("id", res.Block.ID).Msg("touch after search failed")
		}
	}

	logger.Debug().Str("query", query).Int("results", len(results)).Msg("ranked search complete")
	return results, nil
}

// keywordOverlap is the share of query tokens found as substrings of any
// content token.
func keywordOverlap(content, query string) float64 {
	queryTokens := strings.Fields(strings.ToLower(query))
	if len(queryTokens) == 0 {
		return 0
	}
	contentTokens := strings.Fields(strings.ToLower(content))

	matched := 0
	for _, qt := range queryTokens {
		for _, ct := range contentTokens {
			if strings.Contains(ct, qt) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(queryTokens))
}
