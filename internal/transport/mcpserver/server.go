// Package mcpserver exposes the memory engine to agent runtimes over the
// Model Context Protocol on stdio. Logging stays on stderr so the protocol
// stream on stdout is never polluted.
package mcpserver

import (
	"context"
	"errors"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/sandevgo/membank/internal/service/orchestrator"
	"github.com/sandevgo/membank/pkg/log"
)

const serverVersion = "0.3.0"

type Server struct {
	engine *orchestrator.Orchestrator
	mcp    *server.MCPServer
	cancel context.CancelFunc
}

func NewServer(engine *orchestrator.Orchestrator) *Server {
	s := &Server{engine: engine}
	s.mcp = server.NewMCPServer(
		"membank",
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// Start serves MCP over stdin/stdout until the context is canceled or the
// client closes the stream.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	log.FromCtx(ctx).Info().Msg("mcp server listening on stdio")

	stdio := server.NewStdioServer(s.mcp)
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	log.FromCtx(ctx).Info().Msg("mcp server stopped")
	return nil
}
