package core

import (
	"time"
)

// Tier classifies a memory block's retention and priority policy. It also
// names the physical partition the block persists under.
type Tier string

const (
	TierCore       Tier = "core"
	TierPersistent Tier = "persistent"
	TierSession    Tier = "session"
	TierArchival   Tier = "archival"
)

// AllTiers lists every tier, highest priority first.
var AllTiers = []Tier{TierCore, TierPersistent, TierSession, TierArchival}

func (t Tier) Valid() bool {
	switch t {
	case TierCore, TierPersistent, TierSession, TierArchival:
		return true
	}
	return false
}

// Metadata carries a block's bookkeeping fields plus an open extension map
// for forward-compatible custom fields.
type Metadata struct {
	Created        time.Time      `json:"created"`
	Updated        time.Time      `json:"updated"`
	RelevanceScore float64        `json:"relevance_score"`
	Tags           []string       `json:"tags,omitempty"`
	AccessCount    int            `json:"access_count"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// HasTag reports whether the tag list contains tag.
func (m *Metadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// MemoryBlock is the fundamental stored unit. The tier serializes as "type"
// so block files and backup snapshot entries share one shape.
type MemoryBlock struct {
	ID       string   `json:"id"`
	Tier     Tier     `json:"type"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// Clone returns a deep copy so callers can mutate results without touching
// the store's cache.
func (b *MemoryBlock) Clone() *MemoryBlock {
	cp := *b
	if b.Metadata.Tags != nil {
		cp.Metadata.Tags = append([]string(nil), b.Metadata.Tags...)
	}
	if b.Metadata.Extra != nil {
		cp.Metadata.Extra = make(map[string]any, len(b.Metadata.Extra))
		for k, v := range b.Metadata.Extra {
			cp.Metadata.Extra[k] = v
		}
	}
	return &cp
}

// Age is the time elapsed since the block was created.
func (b *MemoryBlock) Age(now time.Time) time.Duration {
	return now.Sub(b.Metadata.Created)
}

// MetadataPatch is merged over existing metadata by Update. Nil fields are
// left untouched.
type MetadataPatch struct {
	RelevanceScore *float64
	Tags           []string
	Extra          map[string]any
}

// ClampScore forces a relevance score into [0,1].
func ClampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
