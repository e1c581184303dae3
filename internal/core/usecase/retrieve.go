package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
)

type RetrieverOptions struct {
	// SingleK is the breadth for a plan with one sub-query.
	SingleK int
	// DecomposedK is the breadth per sub-query when the plan has several.
	DecomposedK    int
	ScoreThreshold float64
	Concurrency    int
}

func DefaultRetrieverOptions() RetrieverOptions {
	return RetrieverOptions{
		SingleK:        4,
		DecomposedK:    1,
		ScoreThreshold: 0.5,
		Concurrency:    1,
	}
}

type Retriever struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	opts     RetrieverOptions
}

func NewRetriever(embedder ports.Embedder, index ports.VectorIndex, opts RetrieverOptions) *Retriever {
	def := DefaultRetrieverOptions()
	if opts.SingleK <= 0 {
		opts.SingleK = def.SingleK
	}
	if opts.DecomposedK <= 0 {
		opts.DecomposedK = def.DecomposedK
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	return &Retriever{embedder: embedder, index: index, opts: opts}
}

func (r *Retriever) breadth(plan domain.RetrievalPlan) int {
	if plan.IsDecomposed() {
		return r.opts.DecomposedK
	}
	return r.opts.SingleK
}

// Retrieve runs every sub-query and merges the hits in plan order.
func (r *Retriever) Retrieve(ctx context.Context, plan domain.RetrievalPlan) (domain.ContextSet, error) {
	k := r.breadth(plan)
	progress := progressFrom(ctx)
	perQuery := make([][]domain.RetrievedDocument, len(plan.SubQueries))

	if r.opts.Concurrency == 1 {
		for i, q := range plan.SubQueries {
			progress.Retrieving(q, k)
			docs, err := r.retrieveOne(ctx, q, k)
			if err != nil {
				return domain.ContextSet{}, err
			}
			perQuery[i] = docs
		}
		return MergeContext(perQuery), nil
	}

	for _, q := range plan.SubQueries {
		progress.Retrieving(q, k)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i, q := range plan.SubQueries {
		g.Go(func() error {
			docs, err := r.retrieveOne(gctx, q, k)
			if err != nil {
				return err
			}
			perQuery[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.ContextSet{}, err
	}
	return MergeContext(perQuery), nil
}

func (r *Retriever) retrieveOne(ctx context.Context, subQuery string, k int) ([]domain.RetrievedDocument, error) {
	vector, err := r.embedder.EmbedQuery(ctx, subQuery)
	if err != nil {
		return nil, fmt.Errorf("embed sub-query: %w", err)
	}
	docs, err := r.index.Query(ctx, vector, k, r.opts.ScoreThreshold)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	slog.Debug("subquery_retrieved", "sub_query", subQuery, "k", k, "documents", len(docs))
	return docs, nil
}

// MergeContext concatenates per-sub-query hits in order and keeps the first
// document for each distinct content.
func MergeContext(perQuery [][]domain.RetrievedDocument) domain.ContextSet {
	seen := make(map[string]struct{})
	out := domain.ContextSet{Documents: []domain.RetrievedDocument{}}
	for _, docs := range perQuery {
		for _, doc := range docs {
			if _, ok := seen[doc.Content]; ok {
				continue
			}
			seen[doc.Content] = struct{}{}
			out.Documents = append(out.Documents, doc)
		}
	}
	return out
}
