package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
)

// GenerateUseCase runs classify -> plan -> retrieve -> synthesize for one request.
type GenerateUseCase struct {
	classifier  ports.RequestClassifier
	planner     ports.RetrievalPlanner
	retriever   ports.ContextRetriever
	synthesizer ports.CodeSynthesizer
	observer    ports.PipelineObserver
	timeout     time.Duration
}

// NewGenerateUseCase accepts a nil classifier when classification is disabled.
func NewGenerateUseCase(
	classifier ports.RequestClassifier,
	planner ports.RetrievalPlanner,
	retriever ports.ContextRetriever,
	synthesizer ports.CodeSynthesizer,
	observer ports.PipelineObserver,
	timeout time.Duration,
) *GenerateUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	return &GenerateUseCase{
		classifier:  classifier,
		planner:     planner,
		retriever:   retriever,
		synthesizer: synthesizer,
		observer:    observer,
		timeout:     timeout,
	}
}

func (uc *GenerateUseCase) Generate(ctx context.Context, request string) (*domain.GenerationResult, error) {
	started := time.Now()
	result, err := uc.generate(ctx, request)
	uc.observer.ObserveGeneration(result, err, time.Since(started).Seconds())
	return result, err
}

func (uc *GenerateUseCase) generate(ctx context.Context, request string) (*domain.GenerationResult, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "generate", errors.New("request is empty"))
	}
	if uc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.timeout)
		defer cancel()
	}
	progress := progressFrom(ctx)

	result := &domain.GenerationResult{Request: request, Kind: domain.RequestSimple}
	if uc.classifier != nil {
		result.Kind = uc.classifier.Classify(ctx, request)
	}

	result.Plan = uc.planner.Plan(ctx, request)
	progress.Planned(result.Plan)
	slog.Info("retrieval_planned",
		"kind", result.Kind,
		"sub_queries", len(result.Plan.SubQueries),
		"fallback", result.Plan.Fallback,
	)

	contextSet, err := uc.retriever.Retrieve(ctx, result.Plan)
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}
	result.Context = contextSet
	if contextSet.Empty() {
		result.Outcome = domain.OutcomeNoContext
		slog.Info("generation_no_context", "sub_queries", len(result.Plan.SubQueries))
		return result, nil
	}
	progress.Collected(contextSet.Len())

	code, err := uc.synthesizer.Synthesize(ctx, request, contextSet)
	if err != nil {
		return nil, err
	}
	result.Code = code
	result.Outcome = domain.OutcomeGenerated
	slog.Info("generation_completed", "kind", result.Kind, "documents", contextSet.Len())
	return result, nil
}
