// Package optimizer is the scheduled lifecycle manager for the memory store:
// stale cleanup, group compression, archival of old blocks, relevance
// rescoring and advisory recommendations. Core-tier blocks are exempt from
// every destructive pass.
package optimizer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/internal/service/ranker"
	"github.com/sandevgo/membank/pkg/conv"
	"github.com/sandevgo/membank/pkg/log"
)

const (
	// compressed marks a block that absorbed a group of its peers.
	compressedTag = "compressed"

	// contentLengthBucketSize groups blocks of similar size for compression.
	contentLengthBucketSize = 500

	// summarySentenceChars bounds each absorbed block's summary line.
	summarySentenceChars = 120

	staleScoreThreshold = 0.3
)

type Config struct {
	RetentionDays        int
	CompressionThreshold int
	CapacityLimit        int
}

type Optimizer struct {
	store  core.BlockStore
	ranker *ranker.Ranker
	cfg    Config
}

func New(store core.BlockStore, r *ranker.Ranker, cfg Config) *Optimizer {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 90
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = 5
	}
	if cfg.CapacityLimit <= 0 {
		cfg.CapacityLimit = 1000
	}
	return &Optimizer{store: store, ranker: r, cfg: cfg}
}

// Report aggregates one full optimization pass. Per-item failures are
// counted, logged and skipped; they never abort the pass.
type Report struct {
	StartedAt       time.Time        `json:"started_at"`
	Duration        time.Duration    `json:"duration"`
	CleanedUp       int              `json:"cleaned_up"`
	Compressed      int              `json:"compressed"`
	Archived        int              `json:"archived"`
	Rescored        int              `json:"rescored"`
	Failures        int              `json:"failures"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
}

// Run executes every optimization pass in order and returns the aggregate
// report. Individual pass errors are folded into the report rather than
// returned; only a store-level listing failure aborts.
func (o *Optimizer) Run(ctx context.Context) (*Report, error) {
	started := time.Now().UTC()
	report := &Report{StartedAt: started}

	if err := o.CleanupStale(ctx, report); err != nil {
		return nil, err
	}
	if err := o.Compress(ctx, report); err != nil {
		return nil, err
	}
	if err := o.ArchiveOld(ctx, report); err != nil {
		return nil, err
	}
	if err := o.RescoreRelevance(ctx, report); err != nil {
		return nil, err
	}

	recs, err := o.Recommendations(ctx)
	if err != nil {
		return nil, err
	}
	report.Recommendations = recs
	report.Duration = time.Since(started)

	log.FromCtx(ctx).Info().
		Int("cleaned", report.CleanedUp).
		Int("compressed", report.Compressed).
		Int("archived", report.Archived).
		Int("rescored", report.Rescored).
		Int("failures", report.Failures).
		Msg("optimization pass complete")

	return report, nil
}

// CleanupStale deletes non-core blocks older than the retention window that
// were never accessed.
func (o *Optimizer) CleanupStale(ctx context.Context, report *Report) error {
	logger := log.FromCtx(ctx)
	cutoff := time.Now().UTC().AddDate(0, 0, -o.cfg.RetentionDays)

	for _, tier := range []core.Tier{core.TierPersistent, core.TierSession, core.TierArchival} {
		blocks, err := o.store.ListTier(ctx, tier)
		if err != nil {
			return fmt.Errorf("cleanup: list tier %s: %w", tier, err)
		}
		for _, b := range blocks {
			if b.Metadata.AccessCount > 0 || !b.Metadata.Created.Before(cutoff) {
				continue
			}
			if err := o.store.Delete(ctx, b.ID); err != nil {
				report.Failures++
				logger.Warn().Err(err).Str("id", b.ID).Msg("stale cleanup failed for block")
				continue
			}
			report.CleanedUp++
		}
	}
	return nil
}

// Compress folds groups of similar blocks into their highest-value member.
// Blocks group by (tier, content length bucket, first two tags); groups at
// or above the threshold keep one primary, which gains a summary of the
// others and the compressed tag, while the rest are deleted.
func (o *Optimizer) Compress(ctx context.Context, report *Report) error {
	logger := log.FromCtx(ctx)

	groups, err := o.compressibleGroups(ctx)
	if err != nil {
		return err
	}

	for key, group := range groups {
		if len(group) < o.cfg.CompressionThreshold {
			continue
		}

		// Highest combined value first; that one survives
		sort.SliceStable(group, func(i, j int) bool {
			return compressionRank(group[i]) > compressionRank(group[j])
		})
		primary, rest := group[0], group[1:]

		summary := summarize(rest)
		tags := primary.Metadata.Tags
		if !primary.Metadata.HasTag(compressedTag) {
			tags = append(append([]string(nil), tags...), compressedTag)
		}

		_, err := o.store.Update(ctx, primary.ID, primary.Content+summary, &core.MetadataPatch{Tags: tags})
		if err != nil {
			report.Failures++
			logger.Warn().Err(err).Str("id", primary.ID).Msg("compression primary update failed")
			continue
		}

		for _, b := range rest {
			if err := o.store.Delete(ctx, b.ID); err != nil {
				report.Failures++
				logger.Warn().Err(err).Str("id", b.ID).Msg("compression delete failed")
				continue
			}
			report.Compressed++
		}

		logger.Debug().Str("group", key).Int("folded", len(rest)).Msg("compressed block group")
	}
	return nil
}

// ArchiveOld retires non-core, non-archival blocks older than twice the
// retention window.
func (o *Optimizer) ArchiveOld(ctx context.Context, report *Report) error {
	logger := log.FromCtx(ctx)
	cutoff := time.Now().UTC().AddDate(0, 0, -2*o.cfg.RetentionDays)

	for _, tier := range []core.Tier{core.TierPersistent, core.TierSession} {
		blocks, err := o.store.ListTier(ctx, tier)
		if err != nil {
			return fmt.Errorf("archive: list tier %s: %w", tier, err)
		}
		for _, b := range blocks {
			if !b.Metadata.Created.Before(cutoff) {
				continue
			}
			if _, err := o.store.Archive(ctx, b.ID); err != nil {
				report.Failures++
				logger.Warn().Err(err).Str("id", b.ID).Msg("archive failed for block")
				continue
			}
			report.Archived++
		}
	}
	return nil
}

// RescoreRelevance recomputes every block's score from access and recency
// signals, persisting only meaningful drifts (delta of 0.1 or more). Persisting goes
// through Store, not Update, so rescoring never inflates access counts.
func (o *Optimizer) RescoreRelevance(ctx context.Context, report *Report) error {
	logger := log.FromCtx(ctx)
	now := time.Now().UTC()

	for _, tier := range core.AllTiers {
		blocks, err := o.store.ListTier(ctx, tier)
		if err != nil {
			return fmt.Errorf("rescore: list tier %s: %w", tier, err)
		}
		for _, b := range blocks {
			newScore := rescore(b, now)
			if diff := newScore - b.Metadata.RelevanceScore; diff < 0.1 && diff > -0.1 {
				continue
			}
			b.Metadata.RelevanceScore = newScore
			if _, err := o.store.Store(ctx, b); err != nil {
				report.Failures++
				logger.Warn().Err(err).Str("id", b.ID).Msg("rescore persist failed")
				continue
			}
			report.Rescored++
		}
	}
	return nil
}

func rescore(b *core.MemoryBlock, now time.Time) float64 {
	score := b.Metadata.RelevanceScore

	accessBoost := float64(b.Metadata.AccessCount) * 0.02
	if accessBoost > 0.2 {
		accessBoost = 0.2
	}
	score += accessBoost

	updatedAge := now.Sub(b.Metadata.Updated).Hours() / 24
	if recencyBoost := 0.1 - updatedAge*0.01; recencyBoost > 0 {
		score += recencyBoost
	}

	if b.Age(now) > 365*24*time.Hour {
		score -= 0.1
	}

	return core.ClampScore(score)
}

// compressionRank orders group members; the winner absorbs the rest.
func compressionRank(b *core.MemoryBlock) float64 {
	return b.Metadata.RelevanceScore + 0.1*float64(b.Metadata.AccessCount)
}

// compressibleGroups buckets eligible (non-core) blocks by tier, content
// length bucket and leading tags.
func (o *Optimizer) compressibleGroups(ctx context.Context) (map[string][]*core.MemoryBlock, error) {
	groups := make(map[string][]*core.MemoryBlock)
	for _, tier := range []core.Tier{core.TierPersistent, core.TierSession, core.TierArchival} {
		blocks, err := o.store.ListTier(ctx, tier)
		if err != nil {
			return nil, fmt.Errorf("compress: list tier %s: %w", tier, err)
		}
		for _, b := range blocks {
			key := groupKey(b)
			groups[key] = append(groups[key], b)
		}
	}
	return groups, nil
}

func groupKey(b *core.MemoryBlock) string {
	bucket := len(b.Content) / contentLengthBucketSize
	tags := b.Metadata.Tags
	if len(tags) > 2 {
		tags = tags[:2]
	}
	return fmt.Sprintf("%s|%d|%s", b.Tier, bucket, strings.Join(tags, ","))
}

// summarize produces the text appended to a compression primary: one
// leading-sentence line per absorbed block.
func summarize(blocks []*core.MemoryBlock) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\n\n[compressed summary of %d related blocks]\n", len(blocks)))
	for _, b := range blocks {
		line := conv.LeadingSentences(conv.MarkdownToText(b.Content), summarySentenceChars)
		sb.WriteString("- " + line + "\n")
	}
	return sb.String()
}
