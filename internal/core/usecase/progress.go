package usecase

import (
	"context"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
)

// Progress receives pipeline milestones for interactive surfaces. All methods
// are called from the request goroutine.
type Progress interface {
	Planned(plan domain.RetrievalPlan)
	Retrieving(subQuery string, k int)
	Collected(documents int)
}

type progressKey struct{}

func WithProgress(ctx context.Context, p Progress) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey{}, p)
}

func progressFrom(ctx context.Context) Progress {
	if p, ok := ctx.Value(progressKey{}).(Progress); ok {
		return p
	}
	return noopProgress{}
}

type noopProgress struct{}

func (noopProgress) Planned(domain.RetrievalPlan) {}
func (noopProgress) Retrieving(string, int)       {}
func (noopProgress) Collected(int)                {}

type noopObserver struct{}

func (noopObserver) ObserveGeneration(*domain.GenerationResult, error, float64) {}
func (noopObserver) ObserveIndexBatch(int)                                      {}
func (noopObserver) ObserveIndexBuild(domain.IndexStats, error)                 {}
