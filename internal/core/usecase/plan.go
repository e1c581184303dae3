package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
	"github.com/kirillkom/testgen-assistant/internal/core/prompts"
)

const defaultMaxSubQueries = 6

type PlannerOptions struct {
	MaxSubQueries int
	Temperature   float64
}

type Planner struct {
	provider ports.TextCompletionProvider
	prompts  *prompts.Set
	opts     PlannerOptions
}

func NewPlanner(provider ports.TextCompletionProvider, set *prompts.Set, opts PlannerOptions) *Planner {
	if set == nil {
		set = prompts.Defaults()
	}
	if opts.MaxSubQueries <= 0 {
		opts.MaxSubQueries = defaultMaxSubQueries
	}
	return &Planner{provider: provider, prompts: set, opts: opts}
}

// Plan never fails; every problem degrades to the single-query plan.
func (p *Planner) Plan(ctx context.Context, request string) domain.RetrievalPlan {
	prompt, err := p.prompts.RenderPlanner(request)
	if err != nil {
		slog.Warn("planner_prompt_failed", "error", err)
		return domain.SingleQueryPlan(request)
	}

	resp, err := p.provider.Complete(ctx, domain.CompletionRequest{
		Purpose:     domain.PurposePlan,
		Prompt:      prompt,
		Temperature: p.opts.Temperature,
	})
	if err != nil {
		slog.Warn("planner_call_failed", "error", err)
		return domain.SingleQueryPlan(request)
	}

	plan := ParsePlan(request, resp.Text, p.opts.MaxSubQueries)
	if plan.Fallback {
		slog.Warn("planner_output_rejected", "output", truncate(resp.Text, 200))
	}
	return plan
}

// ParsePlan accepts only a JSON array of strings, optionally inside one
// Markdown code fence. Anything else returns the single-query plan.
func ParsePlan(request, raw string, maxSubQueries int) domain.RetrievalPlan {
	body := strings.TrimSpace(StripCodeFence(raw))
	if !strings.HasPrefix(body, "[") {
		return domain.SingleQueryPlan(request)
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return domain.SingleQueryPlan(request)
	}

	subQueries := make([]string, 0, len(items))
	for _, item := range items {
		var q string
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			return domain.SingleQueryPlan(request)
		}
		if err := json.Unmarshal(item, &q); err != nil {
			return domain.SingleQueryPlan(request)
		}
		if q = strings.TrimSpace(q); q != "" {
			subQueries = append(subQueries, q)
		}
	}
	if len(subQueries) == 0 {
		return domain.SingleQueryPlan(request)
	}
	if maxSubQueries > 0 && len(subQueries) > maxSubQueries {
		subQueries = subQueries[:maxSubQueries]
	}
	return domain.RetrievalPlan{Request: request, SubQueries: subQueries}
}

// StripCodeFence removes one Markdown fence wrapping the whole text.
func StripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return raw
	}
	inner := strings.TrimSuffix(text[3:], "```")
	if nl := strings.IndexByte(inner, '\n'); nl >= 0 {
		// The rest of the opening line is a language tag.
		if tag := strings.TrimSpace(inner[:nl]); !strings.ContainsAny(tag, " \t{}[]();\"") {
			inner = inner[nl+1:]
		}
	}
	return strings.Trim(inner, "\r\n")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
