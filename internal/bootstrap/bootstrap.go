package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kirillkom/testgen-assistant/internal/config"
	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
	"github.com/kirillkom/testgen-assistant/internal/core/prompts"
	"github.com/kirillkom/testgen-assistant/internal/core/usecase"
	"github.com/kirillkom/testgen-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/testgen-assistant/internal/infrastructure/events/nats"
	"github.com/kirillkom/testgen-assistant/internal/infrastructure/llm/embedcache"
	"github.com/kirillkom/testgen-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/testgen-assistant/internal/infrastructure/llm/openai"
	"github.com/kirillkom/testgen-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/testgen-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/testgen-assistant/internal/infrastructure/vector/pgvector"
	"github.com/kirillkom/testgen-assistant/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/testgen-assistant/internal/infrastructure/vector/sqlite"
	"github.com/kirillkom/testgen-assistant/internal/observability/metrics"
)

const ServiceName = "testgen"

// App owns the wired pipeline. The generator becomes available once the
// index is loaded or built.
type App struct {
	Config  config.Config
	Metrics *metrics.PipelineMetrics

	IndexUC   *usecase.IndexUseCase
	PlannerUC *usecase.Planner

	queryEmbedder ports.Embedder
	classifier    ports.RequestClassifier
	synthesizer   ports.CodeSynthesizer

	buildMu  sync.Mutex
	mu       sync.RWMutex
	current  *loadedIndex
	retiring sync.WaitGroup

	closeFn func()
}

// loadedIndex pairs an index with the generator reading it. The index is
// closed only after every request that picked it up has returned.
type loadedIndex struct {
	index     ports.VectorIndex
	generator ports.TestGenerator
	readers   sync.WaitGroup
}

type provider struct {
	embedder  ports.Embedder
	completer ports.TextCompletionProvider
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	promptSet, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	resilienceCfg := resilience.DefaultConfig()
	resilienceCfg.RetryMaxAttempts = cfg.RetryMaxAttempts
	resilienceCfg.BreakerEnabled = cfg.BreakerEnabled
	executor := resilience.NewExecutor(resilienceCfg)

	llm, err := newProvider(cfg, executor)
	if err != nil {
		return nil, err
	}

	var closers []func()
	store, closeStore, err := newStore(ctx, cfg, executor)
	if err != nil {
		return nil, err
	}
	closers = append(closers, closeStore)

	var publisher ports.IndexEventPublisher
	if cfg.NATSURL != "" {
		natsPublisher, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
		if err != nil {
			closeStore()
			return nil, fmt.Errorf("init index event publisher: %w", err)
		}
		publisher = natsPublisher
		closers = append(closers, natsPublisher.Close)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(ServiceName)
	tree := localfs.New(cfg.SourceRoot, cfg.SourceExtension)
	chunker := chunking.NewDocCommentSplitter(cfg.DocMarker)

	indexUC := usecase.NewIndexUseCase(tree, chunker, llm.embedder, store, publisher, pipelineMetrics, usecase.IndexOptions{
		BatchSize: cfg.IndexBatchSize,
		Cooldown:  cfg.IndexCooldown,
	})
	plannerUC := usecase.NewPlanner(llm.completer, promptSet, usecase.PlannerOptions{
		MaxSubQueries: cfg.PlannerMaxSubQueries,
		Temperature:   cfg.LLMTemperature,
	})

	var classifier ports.RequestClassifier
	if cfg.ClassifierEnabled {
		classifier = usecase.NewClassifier(llm.completer, promptSet, cfg.LLMTemperature)
	}

	app := &App{
		Config:        cfg,
		Metrics:       pipelineMetrics,
		IndexUC:       indexUC,
		PlannerUC:     plannerUC,
		queryEmbedder: embedcache.New(llm.embedder, cfg.QueryCacheSize),
		classifier:    classifier,
		synthesizer:   usecase.NewSynthesizer(llm.completer, promptSet, cfg.LLMTemperature),
	}
	app.closeFn = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return app, nil
}

func newProvider(cfg config.Config, executor *resilience.Executor) (provider, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		client, err := openai.New(openai.Options{
			APIKey:             cfg.OpenAIAPIKey,
			BaseURL:            cfg.OpenAIBaseURL,
			GenModel:           cfg.OpenAIGenModel,
			EmbedModel:         cfg.OpenAIEmbedModel,
			Timeout:            cfg.LLMTimeout,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return provider{}, fmt.Errorf("init openai provider: %w", err)
		}
		return provider{embedder: openai.NewEmbedder(client), completer: openai.NewCompleter(client)}, nil
	case config.ProviderOllama:
		client := ollama.New(ollama.Options{
			BaseURL:            cfg.OllamaURL,
			GenModel:           cfg.OllamaGenModel,
			EmbedModel:         cfg.OllamaEmbedModel,
			Timeout:            cfg.LLMTimeout,
			ResilienceExecutor: executor,
		})
		return provider{embedder: ollama.NewEmbedder(client), completer: ollama.NewCompleter(client)}, nil
	default:
		return provider{}, domain.WrapError(domain.ErrInvalidInput, "init provider", fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider))
	}
}

func newStore(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.VectorIndexStore, func(), error) {
	switch cfg.VectorBackend {
	case config.BackendQdrant:
		return qdrant.NewStore(qdrant.New(cfg.QdrantURL, executor), cfg.QdrantCollection), func() {}, nil
	case config.BackendPGVector:
		db, err := pgvector.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		store, err := pgvector.NewStore(db, cfg.PGVectorTable)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("init pgvector store: %w", err)
		}
		return store, closeDB(db), nil
	case config.BackendSQLite:
		return sqlite.NewStore(cfg.IndexPath), func() {}, nil
	default:
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "init vector store", fmt.Errorf("unknown VECTOR_BACKEND %q", cfg.VectorBackend))
	}
}

func closeDB(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			slog.Warn("postgres_close_failed", "error", err)
		}
	}
}

// LoadIndex opens the persisted index, building it when absent or when
// rebuild is set, and swaps in a generator over it. Calls are serialized;
// requests already running keep the index they started with.
func (a *App) LoadIndex(ctx context.Context, rebuild bool) (domain.IndexStats, error) {
	a.buildMu.Lock()
	defer a.buildMu.Unlock()

	var (
		idx   ports.VectorIndex
		stats domain.IndexStats
		err   error
	)
	if rebuild {
		idx, stats, err = a.IndexUC.Rebuild(ctx)
	} else {
		idx, stats, err = a.IndexUC.OpenOrBuild(ctx)
	}
	if err != nil {
		return stats, err
	}

	retriever := usecase.NewRetriever(a.queryEmbedder, idx, usecase.RetrieverOptions{
		SingleK:        a.Config.RetrievalSingleK,
		DecomposedK:    a.Config.RetrievalDecomposedK,
		ScoreThreshold: a.Config.RetrievalScoreThreshold,
		Concurrency:    a.Config.RetrievalConcurrency,
	})
	next := &loadedIndex{
		index:     idx,
		generator: usecase.NewGenerateUseCase(a.classifier, a.PlannerUC, retriever, a.synthesizer, a.Metrics, a.Config.RequestTimeout),
	}

	a.mu.Lock()
	previous := a.current
	a.current = next
	a.mu.Unlock()

	a.retire(previous)
	return stats, nil
}

func (a *App) retire(loaded *loadedIndex) {
	if loaded == nil {
		return
	}
	a.retiring.Add(1)
	go func() {
		defer a.retiring.Done()
		loaded.readers.Wait()
		if err := loaded.index.Close(); err != nil {
			slog.Warn("index_close_failed", "error", err)
		}
	}()
}

// Generate implements ports.TestGenerator over the currently loaded index.
func (a *App) Generate(ctx context.Context, request string) (*domain.GenerationResult, error) {
	a.mu.RLock()
	loaded := a.current
	if loaded != nil {
		loaded.readers.Add(1)
	}
	a.mu.RUnlock()
	if loaded == nil {
		return nil, domain.WrapError(domain.ErrIndexNotFound, "generate", errors.New("index is not loaded"))
	}
	defer loaded.readers.Done()
	return loaded.generator.Generate(ctx, request)
}

func (a *App) Plan(ctx context.Context, request string) domain.RetrievalPlan {
	return a.PlannerUC.Plan(ctx, request)
}

func (a *App) Close() {
	a.mu.Lock()
	current := a.current
	a.current = nil
	a.mu.Unlock()

	a.retire(current)
	a.retiring.Wait()
	if a.closeFn != nil {
		a.closeFn()
	}
}
