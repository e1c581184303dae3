package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
)

const (
	ServerName    = "testgen-assistant"
	ServerVersion = "1.0.0"
)

// Indexer loads or rebuilds the index behind the generator.
type Indexer interface {
	LoadIndex(ctx context.Context, rebuild bool) (domain.IndexStats, error)
}

// Server exposes the generation pipeline as MCP tools.
type Server struct {
	mcp       *server.MCPServer
	generator ports.TestGenerator
	planner   ports.RetrievalPlanner
	indexer   Indexer
}

// NewServer registers rebuild_index only when indexer is non-nil.
func NewServer(generator ports.TestGenerator, planner ports.RetrievalPlanner, indexer Indexer) *Server {
	s := &Server{
		mcp:       server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		generator: generator,
		planner:   planner,
		indexer:   indexer,
	}

	s.mcp.AddTool(generateTestTool(), s.handleGenerateTest)
	s.mcp.AddTool(planRetrievalTool(), s.handlePlanRetrieval)
	if indexer != nil {
		s.mcp.AddTool(rebuildIndexTool(), s.handleRebuildIndex)
	}
	return s
}

// Serve blocks on stdio until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

func generateTestTool() mcp.Tool {
	return mcp.NewTool("generate_test",
		mcp.WithDescription("Generate test code for a request, grounded in the indexed test sources"),
		mcp.WithString("request",
			mcp.Required(),
			mcp.Description("What the test should cover, in natural language"),
		),
	)
}

func planRetrievalTool() mcp.Tool {
	return mcp.NewTool("plan_retrieval",
		mcp.WithDescription("Show the sub-queries the planner would retrieve for a request"),
		mcp.WithString("request",
			mcp.Required(),
			mcp.Description("Request to decompose"),
		),
	)
}

func rebuildIndexTool() mcp.Tool {
	return mcp.NewTool("rebuild_index",
		mcp.WithDescription("Re-index the source tree and replace the live index"),
	)
}

func (s *Server) handleGenerateTest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := strings.TrimSpace(request.GetString("request", ""))
	if text == "" {
		return mcp.NewToolResultError("request parameter is required"), nil
	}

	result, err := s.generator.Generate(ctx, text)
	if err != nil {
		slog.Error("mcp_generate_failed", "error", err)
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	if result.Outcome == domain.OutcomeNoContext {
		return mcp.NewToolResultText(domain.NoContextMessage), nil
	}
	return mcp.NewToolResultText(result.Code), nil
}

func (s *Server) handlePlanRetrieval(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := strings.TrimSpace(request.GetString("request", ""))
	if text == "" {
		return mcp.NewToolResultError("request parameter is required"), nil
	}
	return jsonResult(s.planner.Plan(ctx, text))
}

func (s *Server) handleRebuildIndex(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.indexer.LoadIndex(ctx, true)
	if err != nil {
		slog.Error("mcp_rebuild_index_failed", "error", err)
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	return jsonResult(map[string]any{
		"files":       stats.FilesSeen,
		"chunks":      stats.Chunks,
		"batches":     stats.Batches,
		"duration_ms": stats.Duration.Milliseconds(),
	})
}

func toolErrorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return fmt.Sprintf("invalid request: %v", err)
	case domain.IsKind(err, domain.ErrNoChunks):
		return fmt.Sprintf("source tree has nothing to index: %v", err)
	case domain.IsKind(err, domain.ErrIndexNotFound):
		return "index is not loaded"
	case domain.IsKind(err, domain.ErrTemporary):
		return fmt.Sprintf("provider temporarily unavailable: %v", err)
	default:
		return err.Error()
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
