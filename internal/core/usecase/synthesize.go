package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
	"github.com/kirillkom/testgen-assistant/internal/core/prompts"
)

type Synthesizer struct {
	provider    ports.TextCompletionProvider
	prompts     *prompts.Set
	temperature float64
}

func NewSynthesizer(provider ports.TextCompletionProvider, set *prompts.Set, temperature float64) *Synthesizer {
	if set == nil {
		set = prompts.Defaults()
	}
	return &Synthesizer{provider: provider, prompts: set, temperature: temperature}
}

func (s *Synthesizer) Synthesize(ctx context.Context, request string, contextSet domain.ContextSet) (string, error) {
	prompt, err := s.prompts.RenderSynthesis(request, contextSet)
	if err != nil {
		return "", fmt.Errorf("render synthesis prompt: %w", err)
	}

	resp, err := s.provider.Complete(ctx, domain.CompletionRequest{
		Purpose:     domain.PurposeSynthesize,
		Prompt:      prompt,
		Temperature: s.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("synthesize test: %w", err)
	}
	return strings.TrimSpace(StripCodeFence(resp.Text)), nil
}
