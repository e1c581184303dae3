package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
	"github.com/kirillkom/testgen-assistant/internal/core/prompts"
)

type Classifier struct {
	provider    ports.TextCompletionProvider
	prompts     *prompts.Set
	temperature float64
}

func NewClassifier(provider ports.TextCompletionProvider, set *prompts.Set, temperature float64) *Classifier {
	if set == nil {
		set = prompts.Defaults()
	}
	return &Classifier{provider: provider, prompts: set, temperature: temperature}
}

// Classify never fails: any provider error or unknown label yields simple.
func (c *Classifier) Classify(ctx context.Context, request string) domain.RequestKind {
	prompt, err := c.prompts.RenderClassifier(request)
	if err != nil {
		slog.Warn("classifier_prompt_failed", "error", err)
		return domain.RequestSimple
	}

	resp, err := c.provider.Complete(ctx, domain.CompletionRequest{
		Purpose:     domain.PurposeClassify,
		Prompt:      prompt,
		Temperature: c.temperature,
	})
	if err != nil {
		slog.Warn("classifier_call_failed", "error", err)
		return domain.RequestSimple
	}
	return ParseClassification(resp.Text)
}

func ParseClassification(raw string) domain.RequestKind {
	label := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "\"'`. \t\r\n"))
	switch label {
	case prompts.LabelComplex:
		return domain.RequestComplex
	case prompts.LabelSimple:
		return domain.RequestSimple
	default:
		slog.Debug("classifier_unknown_label", "label", raw)
		return domain.RequestSimple
	}
}
