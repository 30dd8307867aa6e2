package optimizer

import (
	"context"
	"fmt"

	"github.com/sandevgo/membank/internal/core"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Recommendation is a rule-based advisory. Capacity pressure surfaces here
// as advice, never as a hard failure.
type Recommendation struct {
	Kind     string   `json:"kind"`
	Priority Priority `json:"priority"`
	Message  string   `json:"message"`
}

// Recommendations inspects the corpus and reports what the next optimization
// or operator action should be.
func (o *Optimizer) Recommendations(ctx context.Context) ([]Recommendation, error) {
	all, err := core.ListAll(ctx, o.store)
	if err != nil {
		return nil, err
	}

	var recs []Recommendation

	if len(all) > o.cfg.CapacityLimit {
		recs = append(recs, Recommendation{
			Kind:     "capacity",
			Priority: PriorityHigh,
			Message: fmt.Sprintf("store holds %d blocks, over the %d capacity limit; run cleanup or archival",
				len(all), o.cfg.CapacityLimit),
		})
	}

	lowScore := 0
	for _, b := range all {
		if b.Metadata.RelevanceScore < staleScoreThreshold {
			lowScore++
		}
	}
	if len(all) > 0 && lowScore*100/len(all) >= 30 {
		recs = append(recs, Recommendation{
			Kind:     "low_relevance",
			Priority: PriorityMedium,
			Message: fmt.Sprintf("%d of %d blocks score below %.1f; consider a rescoring pass or retention review",
				lowScore, len(all), staleScoreThreshold),
		})
	}

	groups, err := o.compressibleGroups(ctx)
	if err != nil {
		return nil, err
	}
	compressible := 0
	for _, g := range groups {
		if len(g) >= o.cfg.CompressionThreshold {
			compressible++
		}
	}
	if compressible > 0 {
		recs = append(recs, Recommendation{
			Kind:     "compression",
			Priority: PriorityLow,
			Message:  fmt.Sprintf("%d block groups are eligible for compression", compressible),
		})
	}

	return recs, nil
}
