// Package prompts holds the instruction templates sent to the generative
// model. Templates are data: they can be overridden from a YAML file without
// touching the pipeline code, as long as each keeps its output contract.
package prompts

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
)

// Labels the classifier template must answer with.
const (
	LabelSimple  = "simple_question"
	LabelComplex = "complex_code_generation"
)

type Set struct {
	Classifier string `yaml:"classifier"`
	Planner    string `yaml:"planner"`
	Synthesis  string `yaml:"synthesis"`

	classifier *template.Template
	planner    *template.Template
	synthesis  *template.Template
}

type requestData struct {
	Request string
}

type synthesisData struct {
	Request string
	Context string
}

func Defaults() *Set {
	set, err := newSet(defaultClassifier, defaultPlanner, defaultSynthesis)
	if err != nil {
		panic(fmt.Sprintf("prompts: default templates: %v", err))
	}
	return set
}

// Load reads template overrides from a YAML file. Missing keys keep defaults.
func Load(path string) (*Set, error) {
	if strings.TrimSpace(path) == "" {
		return Defaults(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}

	var overrides Set
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}

	classifier := firstNonBlank(overrides.Classifier, defaultClassifier)
	planner := firstNonBlank(overrides.Planner, defaultPlanner)
	synthesis := firstNonBlank(overrides.Synthesis, defaultSynthesis)
	return newSet(classifier, planner, synthesis)
}

func newSet(classifier, planner, synthesis string) (*Set, error) {
	set := &Set{Classifier: classifier, Planner: planner, Synthesis: synthesis}

	var err error
	if set.classifier, err = template.New("classifier").Parse(classifier); err != nil {
		return nil, fmt.Errorf("parse classifier template: %w", err)
	}
	if set.planner, err = template.New("planner").Parse(planner); err != nil {
		return nil, fmt.Errorf("parse planner template: %w", err)
	}
	if set.synthesis, err = template.New("synthesis").Parse(synthesis); err != nil {
		return nil, fmt.Errorf("parse synthesis template: %w", err)
	}
	return set, nil
}

func (s *Set) RenderClassifier(request string) (string, error) {
	return render(s.classifier, requestData{Request: request})
}

func (s *Set) RenderPlanner(request string) (string, error) {
	return render(s.planner, requestData{Request: request})
}

func (s *Set) RenderSynthesis(request string, contextSet domain.ContextSet) (string, error) {
	return render(s.synthesis, synthesisData{
		Request: request,
		Context: FormatContext(contextSet),
	})
}

// FormatContext lays out retrieved documents in retrieval order.
func FormatContext(contextSet domain.ContextSet) string {
	var b strings.Builder
	for idx, doc := range contextSet.Documents {
		fmt.Fprintf(&b, "// [%d] source=%s type=%s score=%.3f\n%s\n\n",
			idx+1,
			doc.SourcePath,
			doc.ChunkType,
			doc.Score,
			doc.Content,
		)
	}
	return b.String()
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
