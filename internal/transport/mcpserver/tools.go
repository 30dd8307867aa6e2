package mcpserver

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sandevgo/membank/internal/core"
	"github.com/sandevgo/membank/internal/service/assembler"
	"github.com/sandevgo/membank/internal/service/ranker"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("memory_store",
		mcp.WithDescription("Store a new memory block in the given tier"),
		mcp.WithString("content", mcp.Required(), mcp.Description("Fact or note to remember")),
		mcp.WithString("tier", mcp.Description("core, persistent, session or archival; defaults to persistent")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
		mcp.WithNumber("relevance", mcp.Description("Initial relevance score in [0,1]")),
	), s.handleStore)

	s.mcp.AddTool(mcp.NewTool("memory_retrieve",
		mcp.WithDescription("Retrieve a memory block by id; counts as an access"),
		mcp.WithString("id", mcp.Required()),
	), s.handleRetrieve)

	s.mcp.AddTool(mcp.NewTool("memory_update",
		mcp.WithDescription("Replace a block's content and optionally patch its metadata"),
		mcp.WithString("id", mcp.Required()),
		mcp.WithString("content", mcp.Required()),
		mcp.WithString("tags", mcp.Description("Comma-separated tags; replaces the existing set")),
		mcp.WithNumber("relevance", mcp.Description("New relevance score in [0,1]")),
	), s.handleUpdate)

	s.mcp.AddTool(mcp.NewTool("memory_delete",
		mcp.WithDescription("Delete a memory block permanently"),
		mcp.WithString("id", mcp.Required()),
	), s.handleDelete)

	s.mcp.AddTool(mcp.NewTool("memory_archive",
		mcp.WithDescription("Move a block to the archival tier; the transition is one-way"),
		mcp.WithString("id", mcp.Required()),
	), s.handleArchive)

	s.mcp.AddTool(mcp.NewTool("memory_search",
		mcp.WithDescription("Ranked lexical search over stored memory"),
		mcp.WithString("query", mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum results, default 10")),
		mcp.WithNumber("min_score", mcp.Description("Drop results scoring below this")),
	), s.handleSearch)

	s.mcp.AddTool(mcp.NewTool("memory_context",
		mcp.WithDescription("Assemble a token-budgeted context payload for a task"),
		mcp.WithString("task", mcp.Required()),
		mcp.WithNumber("max_tokens", mcp.Description("Token budget, default 8000")),
	), s.handleContext)

	s.mcp.AddTool(mcp.NewTool("memory_optimize",
		mcp.WithDescription("Run the optimization passes: cleanup, compression, archival, rescoring"),
	), s.handleOptimize)

	s.mcp.AddTool(mcp.NewTool("memory_stats",
		mcp.WithDescription("Per-tier block counts and operation usage"),
	), s.handleStats)
}

func (s *Server) handleStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	block := &core.MemoryBlock{
		Tier:    core.Tier(req.GetString("tier", string(core.TierPersistent))),
		Content: content,
		Metadata: core.Metadata{
			RelevanceScore: req.GetFloat("relevance", 0),
			Tags:           splitTags(req.GetString("tags", "")),
		},
	}

	stored, err := s.engine.StoreBlock(ctx, block)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(stored)
}

func (s *Server) handleRetrieve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.engine.RetrieveBlock(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	patch := &core.MetadataPatch{}
	if tags := splitTags(req.GetString("tags", "")); tags != nil {
		patch.Tags = tags
	}
	if score := req.GetFloat("relevance", -1); score >= 0 {
		patch.RelevanceScore = &score
	}

	b, err := s.engine.UpdateBlock(ctx, id, content, patch)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.engine.DeleteBlock(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("deleted " + id), nil
}

func (s *Server) handleArchive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.engine.ArchiveBlock(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(b)
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results, err := s.engine.Search(ctx, query, ranker.SearchOptions{
		Limit:    int(req.GetFloat("limit", 10)),
		MinScore: req.GetFloat("min_score", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) handleContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := req.RequireString("task")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	payload, err := s.engine.AssembleContext(ctx, task, assembler.Options{
		IncludeCoreMemory:     true,
		IncludeSessionContext: true,
		IncludeRelevantMemory: true,
		MaxTokens:             int(req.GetFloat("max_tokens", 0)),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(payload)
}

func (s *Server) handleOptimize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.engine.Optimize(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func (s *Server) handleStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.engine.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(stats)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
