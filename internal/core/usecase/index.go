package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
)

const defaultIndexBatchSize = 5

type IndexOptions struct {
	// BatchSize is the number of chunks per embedding call.
	BatchSize int
	// Cooldown is the minimum spacing between the starts of consecutive
	// embedding calls. Zero disables pacing.
	Cooldown time.Duration
}

type waiter interface {
	Wait(ctx context.Context) error
}

type IndexUseCase struct {
	tree      ports.SourceTree
	chunker   ports.Chunker
	embedder  ports.Embedder
	store     ports.VectorIndexStore
	publisher ports.IndexEventPublisher
	observer  ports.PipelineObserver
	opts      IndexOptions

	newLimiter func(time.Duration) waiter
	newID      func() string
	now        func() time.Time
}

func NewIndexUseCase(
	tree ports.SourceTree,
	chunker ports.Chunker,
	embedder ports.Embedder,
	store ports.VectorIndexStore,
	publisher ports.IndexEventPublisher,
	observer ports.PipelineObserver,
	opts IndexOptions,
) *IndexUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultIndexBatchSize
	}
	if opts.Cooldown < 0 {
		opts.Cooldown = 0
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &IndexUseCase{
		tree:      tree,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		publisher: publisher,
		observer:  observer,
		opts:      opts,
		newLimiter: func(every time.Duration) waiter {
			if every <= 0 {
				return rate.NewLimiter(rate.Inf, 1)
			}
			return rate.NewLimiter(rate.Every(every), 1)
		},
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// OpenOrBuild loads the persisted index, building it first when none exists.
func (uc *IndexUseCase) OpenOrBuild(ctx context.Context) (ports.VectorIndex, domain.IndexStats, error) {
	exists, err := uc.store.Exists(ctx)
	if err != nil {
		return nil, domain.IndexStats{}, fmt.Errorf("check index: %w", err)
	}
	if !exists {
		slog.Info("index_not_found")
		return uc.Rebuild(ctx)
	}

	idx, err := uc.store.Open(ctx)
	if err != nil {
		return nil, domain.IndexStats{}, fmt.Errorf("open index: %w", err)
	}
	slog.Info("index_loaded")
	return idx, domain.IndexStats{Loaded: true}, nil
}

// Rebuild indexes the whole source tree. The new index replaces the old one
// only after the final batch succeeds.
func (uc *IndexUseCase) Rebuild(ctx context.Context) (ports.VectorIndex, domain.IndexStats, error) {
	started := uc.now()
	idx, stats, err := uc.build(ctx)
	stats.Duration = uc.now().Sub(started)
	uc.observer.ObserveIndexBuild(stats, err)
	if err != nil {
		slog.Error("index_build_failed", "error", err, "chunks", stats.Chunks, "batches", stats.Batches)
		return nil, stats, err
	}

	slog.Info("index_build_completed",
		"files", stats.FilesSeen,
		"files_skipped", stats.FilesSkipped,
		"chunks", stats.Chunks,
		"batches", stats.Batches,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	if uc.publisher != nil {
		if err := uc.publisher.PublishIndexBuilt(ctx, stats); err != nil {
			slog.Warn("index_event_publish_failed", "error", err)
		}
	}
	return idx, stats, nil
}

func (uc *IndexUseCase) build(ctx context.Context) (ports.VectorIndex, domain.IndexStats, error) {
	var stats domain.IndexStats

	chunks, err := uc.collectChunks(ctx, &stats)
	if err != nil {
		return nil, stats, err
	}
	stats.Chunks = len(chunks)
	if len(chunks) == 0 {
		return nil, stats, fmt.Errorf("build index: %w", domain.ErrNoChunks)
	}

	total := (len(chunks) + uc.opts.BatchSize - 1) / uc.opts.BatchSize
	slog.Info("index_build_started",
		"chunks", len(chunks),
		"batches", total,
		"batch_size", uc.opts.BatchSize,
		"estimated_duration", (time.Duration(total-1) * uc.opts.Cooldown).String(),
	)

	build, err := uc.store.NewBuild(ctx)
	if err != nil {
		return nil, stats, fmt.Errorf("start index build: %w", err)
	}

	limiter := uc.newLimiter(uc.opts.Cooldown)
	for start := 0; start < len(chunks); start += uc.opts.BatchSize {
		end := min(start+uc.opts.BatchSize, len(chunks))
		batchNo := start/uc.opts.BatchSize + 1

		if err := limiter.Wait(ctx); err != nil {
			return nil, stats, uc.discard(ctx, build, fmt.Errorf("wait for batch %d/%d: %w", batchNo, total, err))
		}
		slog.Info("index_batch_started", "batch", batchNo, "total", total)

		if err := uc.indexBatch(ctx, build, chunks[start:end]); err != nil {
			return nil, stats, uc.discard(ctx, build, fmt.Errorf("index batch %d/%d: %w", batchNo, total, err))
		}
		stats.Batches++
		uc.observer.ObserveIndexBatch(end - start)
	}

	slog.Info("index_finalizing", "chunks", len(chunks))
	idx, err := build.Persist(ctx)
	if err != nil {
		return nil, stats, uc.discard(ctx, build, fmt.Errorf("persist index: %w", err))
	}
	return idx, stats, nil
}

func (uc *IndexUseCase) collectChunks(ctx context.Context, stats *domain.IndexStats) ([]domain.SourceChunk, error) {
	paths, err := uc.tree.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source files: %w", err)
	}
	slog.Info("source_files_found", "count", len(paths))

	var chunks []domain.SourceChunk
	for _, path := range paths {
		stats.FilesSeen++
		file, err := uc.tree.Read(ctx, path)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			stats.FilesSkipped++
			slog.Warn("source_file_skipped", "path", path, "error", err)
			continue
		}
		fileChunks := uc.chunker.Split(file.Path, file.Content)
		slog.Debug("source_file_chunked", "path", path, "chunks", len(fileChunks))
		chunks = append(chunks, fileChunks...)
	}
	return chunks, nil
}

func (uc *IndexUseCase) indexBatch(ctx context.Context, build ports.IndexBuild, batch []domain.SourceChunk) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Content
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(batch) {
		return domain.WrapError(domain.ErrProvider, "embed chunks",
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(batch)))
	}

	docs := make([]domain.IndexedDocument, len(batch))
	for i, chunk := range batch {
		docs[i] = domain.IndexedDocument{
			ID:     uc.newID(),
			Chunk:  chunk,
			Vector: vectors[i],
		}
	}
	if err := build.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	return nil
}

func (uc *IndexUseCase) discard(ctx context.Context, build ports.IndexBuild, cause error) error {
	if err := build.Discard(context.WithoutCancel(ctx)); err != nil {
		return errors.Join(cause, fmt.Errorf("discard index build: %w", err))
	}
	return cause
}
