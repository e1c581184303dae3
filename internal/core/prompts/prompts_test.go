package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
)

func TestDefaultsRenderRequest(t *testing.T) {
	set := Defaults()

	planner, err := set.RenderPlanner("create a Hold")
	if err != nil {
		t.Fatalf("RenderPlanner() error = %v", err)
	}
	if !strings.Contains(planner, "User Request: create a Hold") {
		t.Fatalf("planner prompt misses request: %s", planner)
	}

	classifier, err := set.RenderClassifier("what is TC_1?")
	if err != nil {
		t.Fatalf("RenderClassifier() error = %v", err)
	}
	if !strings.Contains(classifier, LabelSimple) || !strings.Contains(classifier, LabelComplex) {
		t.Fatalf("classifier prompt must name both labels")
	}
}

func TestRenderSynthesisIncludesContextInOrder(t *testing.T) {
	set := Defaults()
	ctxSet := domain.ContextSet{Documents: []domain.RetrievedDocument{
		{Content: "/** first */ void a() {}", SourcePath: "A.java", ChunkType: domain.ChunkUnit, Score: 0.9},
		{Content: "/** second */ void b() {}", SourcePath: "B.java", ChunkType: domain.ChunkUnit, Score: 0.7},
	}}

	prompt, err := set.RenderSynthesis("combine a and b", ctxSet)
	if err != nil {
		t.Fatalf("RenderSynthesis() error = %v", err)
	}
	first := strings.Index(prompt, "void a()")
	second := strings.Index(prompt, "void b()")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("expected context documents in retrieval order, got: %s", prompt)
	}
	if !strings.Contains(prompt, "combine a and b") {
		t.Fatalf("synthesis prompt misses request")
	}
}

func TestLoadOverridesOnlyGivenTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "planner: |\n  PLAN {{.Request}}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write prompts file: %v", err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	planner, err := set.RenderPlanner("x")
	if err != nil {
		t.Fatalf("RenderPlanner() error = %v", err)
	}
	if strings.TrimSpace(planner) != "PLAN x" {
		t.Fatalf("expected override, got %q", planner)
	}
	if set.Synthesis != defaultSynthesis {
		t.Fatalf("expected default synthesis template to survive")
	}
}

func TestLoadRejectsBrokenTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("classifier: \"{{.Request\"\n"), 0o644); err != nil {
		t.Fatalf("write prompts file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected template parse error")
	}
}
