// Package assembler builds the token-budgeted context payload handed to a
// downstream prompt consumer: system prompt, core memory, session context,
// task-relevant memory and tool definitions, each within a fixed share of
// the caller's token budget.
package assembler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/internal/service/ranker"
	"github.com/sandevgo/membank/pkg/conv"
	"github.com/sandevgo/membank/pkg/log"
	"github.com/sandevgo/membank/pkg/tokens"
)

// Budget shares per section. They sum to 1.0, so the assembled payload can
// never exceed the requested budget by more than per-section header overhead.
const (
	systemPromptShare   = 0.15
	coreMemoryShare     = 0.25
	sessionContextShare = 0.35
	relevantMemoryShare = 0.20
	toolDefsShare       = 0.05
)

const defaultMaxTokens = 8000

const systemPrompt = `You are an assistant with a persistent, tiered memory. ` +
	`Core memory holds durable facts about the user and their projects. ` +
	`Session context reflects the current working session. ` +
	`Relevant memory was retrieved for the task at hand. ` +
	`Prefer remembered facts over assumptions and say so when memory conflicts with the request.`

const toolDefinitions = `memory_store(content, tier, tags) stores a fact; ` +
	`memory_search(query, limit) retrieves ranked matches; ` +
	`memory_update(id, content) revises a block; ` +
	`memory_archive(id) retires a block from active use.`

// Options control which sections are populated.
type Options struct {
	IncludeCoreMemory     bool
	IncludeSessionContext bool
	IncludeRelevantMemory bool
	MaxTokens             int
}

// Item is one memory entry in an assembled section.
type Item struct {
	ID         string    `json:"id"`
	Tier       core.Tier `json:"tier"`
	Content    string    `json:"content"`
	Score      float64   `json:"score"`
	Summarized bool      `json:"summarized,omitempty"`
}

// Payload is the assembled context, ready to serialize into a prompt.
type Payload struct {
	Task            string            `json:"task"`
	SystemPrompt    string            `json:"system_prompt"`
	CoreMemory      []Item            `json:"core_memory,omitempty"`
	SessionContext  map[string]string `json:"session_context,omitempty"`
	RelevantMemory  []Item            `json:"relevant_memory,omitempty"`
	ToolDefinitions string            `json:"tool_definitions"`
	TokenBudget     int               `json:"token_budget"`
	TokensUsed      int               `json:"tokens_used"`
}

type Assembler struct {
	store  core.BlockStore
	ranker *ranker.Ranker
}

func New(store core.BlockStore, r *ranker.Ranker) *Assembler {
	return &Assembler{store: store, ranker: r}
}

// Assemble builds the payload for a task within opts.MaxTokens, compressing
// each section independently against its fixed budget share.
func (a *Assembler) Assemble(ctx context.Context, task string, opts Options) (*Payload, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	payload := &Payload{
		Task:        task,
		TokenBudget: maxTokens,
	}

	payload.SystemPrompt = fitText(systemPrompt, share(maxTokens, systemPromptShare))
	payload.ToolDefinitions = fitText(toolDefinitions, share(maxTokens, toolDefsShare))

	if opts.IncludeCoreMemory {
		blocks, err := a.store.ListTier(ctx, core.TierCore)
		if err != nil {
			return nil, fmt.Errorf("load core memory: %w", err)
		}
		items := make([]Item, 0, len(blocks))
		for _, b := range blocks {
			items = append(items, Item{
				ID:      b.ID,
				Tier:    b.Tier,
				Content: b.Content,
				Score:   b.Metadata.RelevanceScore,
			})
		}
		payload.CoreMemory = compressSection(items, share(maxTokens, coreMemoryShare))
	}

	if opts.IncludeSessionContext {
		session, err := a.store.SessionContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("load session context: %w", err)
		}
		payload.SessionContext = compressSessionContext(session, share(maxTokens, sessionContextShare))
	}

	if opts.IncludeRelevantMemory {
		results, err := a.ranker.Search(ctx, task, ranker.SearchOptions{
			Tiers:    []core.Tier{core.TierPersistent, core.TierSession, core.TierArchival},
			Limit:    20,
			MinScore: 0.1,
		})
		if err != nil {
			return nil, fmt.Errorf("search relevant memory: %w", err)
		}
		items := make([]Item, 0, len(results))
		for _, res := range results {
			items = append(items, Item{
				ID:      res.Block.ID,
				Tier:    res.Block.Tier,
				Content: res.Block.Content,
				Score:   res.Score,
			})
		}
		payload.RelevantMemory = compressSection(items, share(maxTokens, relevantMemoryShare))
	}

	payload.TokensUsed = payload.countTokens()

	log.FromCtx(ctx).Debug().
		Int("budget", maxTokens).
		Int("used", payload.TokensUsed).
		Int("core", len(payload.CoreMemory)).
		Int("relevant", len(payload.RelevantMemory)).
		Msg("assembled context payload")

	return payload, nil
}

func (p *Payload) countTokens() int {
	used := tokens.Estimate(p.SystemPrompt) + tokens.Estimate(p.ToolDefinitions)
	for _, it := range p.CoreMemory {
		used += tokens.Estimate(it.Content)
	}
	for k, v := range p.SessionContext {
		used += tokens.Estimate(k + ": " + v)
	}
	for _, it := range p.RelevantMemory {
		used += tokens.Estimate(it.Content)
	}
	return used
}

func share(maxTokens int, fraction float64) int {
	return int(float64(maxTokens) * fraction)
}

// fitText trims a static text section into its token budget, preferring
// whole sentences.
func fitText(text string, budgetTokens int) string {
	if tokens.Estimate(text) <= budgetTokens {
		return text
	}
	return conv.LeadingSentences(text, budgetTokens*4)
}

// compressSection keeps the highest-relevance items that fit the budget.
// The first item that does not fit gets one shot at a truncated summary of
// leading sentences; after that the section is closed.
func compressSection(items []Item, budgetTokens int) []Item {
	if len(items) == 0 {
		return nil
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})

	var kept []Item
	used := 0
	for _, it := range items {
		cost := tokens.Estimate(it.Content)
		if used+cost <= budgetTokens {
			kept = append(kept, it)
			used += cost
			continue
		}

		remaining := budgetTokens - used
		if remaining > 0 {
			summary := conv.LeadingSentences(conv.MarkdownToText(it.Content), remaining*4)
			if summary != "" {
				it.Content = summary
				it.Summarized = true
				kept = append(kept, it)
			}
		}
		break
	}
	return kept
}

// compressSessionContext packs session entries (ordered by key for
// determinism) into the budget, truncating the first oversized value.
func compressSessionContext(session map[string]string, budgetTokens int) map[string]string {
	if len(session) == 0 {
		return nil
	}

	keys := make([]string, 0, len(session))
	for k := range session {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kept := make(map[string]string)
	used := 0
	for _, k := range keys {
		v := session[k]
		cost := tokens.Estimate(k + ": " + v)
		if used+cost <= budgetTokens {
			kept[k] = v
			used += cost
			continue
		}

		remaining := budgetTokens - used - tokens.Estimate(k+": ")
		if remaining > 0 {
			if summary := conv.LeadingSentences(v, remaining*4); summary != "" {
				kept[k] = summary
			}
		}
		break
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// RenderText flattens the payload into the plain-text prompt form consumed
// by completion providers.
func (p *Payload) RenderText() string {
	var sb strings.Builder
	sb.WriteString(p.SystemPrompt)
	sb.WriteString("\n")

	if len(p.CoreMemory) > 0 {
		sb.WriteString("\n## Core Memory\n")
		for _, it := range p.CoreMemory {
			sb.WriteString("- " + it.Content + "\n")
		}
	}
	if len(p.SessionContext) > 0 {
		sb.WriteString("\n## Session Context\n")
		keys := make([]string, 0, len(p.SessionContext))
		for k := range p.SessionContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString("- " + k + ": " + p.SessionContext[k] + "\n")
		}
	}
	if len(p.RelevantMemory) > 0 {
		sb.WriteString("\n## Relevant Memory\n")
		for _, it := range p.RelevantMemory {
			sb.WriteString("- " + it.Content + "\n")
		}
	}

	sb.WriteString("\n## Tools\n" + p.ToolDefinitions + "\n")
	return sb.String()
}
