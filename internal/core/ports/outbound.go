package ports

import (
	"context"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
)

// SourceFile is one file discovered under the indexing root.
type SourceFile struct {
	Path    string
	Content string
}

// SourceTree enumerates and reads source files. Read failures are per file.
type SourceTree interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, path string) (SourceFile, error)
}

// Chunker splits one file into header and unit chunks.
type Chunker interface {
	Split(path, content string) []domain.SourceChunk
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// TextCompletionProvider is the generative-model boundary.
type TextCompletionProvider interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error)
}

// VectorIndex is a persisted, read-only index ready for queries. Close is
// called only after the last query against the index has returned.
type VectorIndex interface {
	Query(ctx context.Context, queryVector []float32, k int, scoreThreshold float64) ([]domain.RetrievedDocument, error)
	Close() error
}

// IndexBuild accumulates documents in a staging area. Nothing is visible to
// readers until Persist returns.
type IndexBuild interface {
	AddDocuments(ctx context.Context, docs []domain.IndexedDocument) error
	Persist(ctx context.Context) (VectorIndex, error)
	Discard(ctx context.Context) error
}

// VectorIndexStore decides between loading a persisted index and building a new one.
type VectorIndexStore interface {
	Exists(ctx context.Context) (bool, error)
	Open(ctx context.Context) (VectorIndex, error)
	NewBuild(ctx context.Context) (IndexBuild, error)
}

// IndexEventPublisher announces completed index builds.
type IndexEventPublisher interface {
	PublishIndexBuilt(ctx context.Context, stats domain.IndexStats) error
}

// PipelineObserver receives per-request and per-build measurements.
type PipelineObserver interface {
	ObserveGeneration(result *domain.GenerationResult, err error, seconds float64)
	ObserveIndexBatch(chunks int)
	ObserveIndexBuild(stats domain.IndexStats, err error)
}
