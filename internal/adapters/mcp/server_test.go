package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
)

type fakeGenerator struct {
	result *domain.GenerationResult
	err    error
}

func (f fakeGenerator) Generate(context.Context, string) (*domain.GenerationResult, error) {
	return f.result, f.err
}

type fakePlanner struct{}

func (fakePlanner) Plan(_ context.Context, request string) domain.RetrievalPlan {
	return domain.RetrievalPlan{Request: request, SubQueries: []string{"login page", "session cookie"}}
}

type fakeIndexer struct{ called bool }

func (f *fakeIndexer) LoadIndex(context.Context, bool) (domain.IndexStats, error) {
	f.called = true
	return domain.IndexStats{FilesSeen: 3, Chunks: 9, Batches: 2}, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatalf("expected tool content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestGenerateTestReturnsCode(t *testing.T) {
	s := NewServer(fakeGenerator{result: &domain.GenerationResult{Code: "class A {}", Outcome: domain.OutcomeGenerated}}, fakePlanner{}, nil)

	result, err := s.handleGenerateTest(context.Background(), callRequest("generate_test", map[string]any{"request": "test A"}))
	if err != nil {
		t.Fatalf("handleGenerateTest() error = %v", err)
	}
	if result.IsError || resultText(t, result) != "class A {}" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGenerateTestNoContext(t *testing.T) {
	s := NewServer(fakeGenerator{result: &domain.GenerationResult{Outcome: domain.OutcomeNoContext}}, fakePlanner{}, nil)

	result, err := s.handleGenerateTest(context.Background(), callRequest("generate_test", map[string]any{"request": "x"}))
	if err != nil {
		t.Fatalf("handleGenerateTest() error = %v", err)
	}
	if resultText(t, result) != domain.NoContextMessage {
		t.Fatalf("expected no-context message, got %q", resultText(t, result))
	}
}

func TestGenerateTestErrors(t *testing.T) {
	s := NewServer(fakeGenerator{err: domain.WrapError(domain.ErrTemporary, "embed", errors.New("down"))}, fakePlanner{}, nil)

	result, err := s.handleGenerateTest(context.Background(), callRequest("generate_test", map[string]any{"request": "x"}))
	if err != nil {
		t.Fatalf("handleGenerateTest() error = %v", err)
	}
	if !result.IsError || !strings.Contains(resultText(t, result), "temporarily unavailable") {
		t.Fatalf("expected temporary tool error, got %+v", result)
	}

	result, err = s.handleGenerateTest(context.Background(), callRequest("generate_test", map[string]any{}))
	if err != nil {
		t.Fatalf("handleGenerateTest() error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error for missing request")
	}
}

func TestPlanRetrievalReturnsJSON(t *testing.T) {
	s := NewServer(fakeGenerator{}, fakePlanner{}, nil)

	result, err := s.handlePlanRetrieval(context.Background(), callRequest("plan_retrieval", map[string]any{"request": "login"}))
	if err != nil {
		t.Fatalf("handlePlanRetrieval() error = %v", err)
	}
	var plan domain.RetrievalPlan
	if err := json.Unmarshal([]byte(resultText(t, result)), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if len(plan.SubQueries) != 2 || plan.Request != "login" {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestRebuildIndexReportsStats(t *testing.T) {
	indexer := &fakeIndexer{}
	s := NewServer(fakeGenerator{}, fakePlanner{}, indexer)

	result, err := s.handleRebuildIndex(context.Background(), callRequest("rebuild_index", nil))
	if err != nil {
		t.Fatalf("handleRebuildIndex() error = %v", err)
	}
	if !indexer.called || !strings.Contains(resultText(t, result), `"chunks": 9`) {
		t.Fatalf("unexpected rebuild result: %s", resultText(t, result))
	}
}
