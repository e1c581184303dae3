package ports

import (
	"context"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
)

// TestGenerator is the inbound contract for request -> plan -> retrieve -> synthesize.
type TestGenerator interface {
	Generate(ctx context.Context, request string) (*domain.GenerationResult, error)
}

// RetrievalPlanner decomposes a request into sub-queries. It never fails.
type RetrievalPlanner interface {
	Plan(ctx context.Context, request string) domain.RetrievalPlan
}

// RequestClassifier labels a request as simple or complex. It never fails.
type RequestClassifier interface {
	Classify(ctx context.Context, request string) domain.RequestKind
}

// ContextRetriever executes a plan against the index.
type ContextRetriever interface {
	Retrieve(ctx context.Context, plan domain.RetrievalPlan) (domain.ContextSet, error)
}

// CodeSynthesizer turns the request and its context into generated code.
type CodeSynthesizer interface {
	Synthesize(ctx context.Context, request string, contextSet domain.ContextSet) (string, error)
}
