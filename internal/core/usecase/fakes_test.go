package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
)

type completerFake struct {
	mu        sync.Mutex
	responses map[domain.CompletionPurpose]string
	errs      map[domain.CompletionPurpose]error
	prompts   map[domain.CompletionPurpose][]string
}

func newCompleterFake() *completerFake {
	return &completerFake{
		responses: map[domain.CompletionPurpose]string{},
		errs:      map[domain.CompletionPurpose]error{},
		prompts:   map[domain.CompletionPurpose][]string{},
	}
}

func (f *completerFake) Complete(_ context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts[req.Purpose] = append(f.prompts[req.Purpose], req.Prompt)
	if err := f.errs[req.Purpose]; err != nil {
		return domain.CompletionResponse{}, err
	}
	return domain.CompletionResponse{Text: f.responses[req.Purpose]}, nil
}

func (f *completerFake) calls(purpose domain.CompletionPurpose) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts[purpose])
}

// embedderFake maps text to a one-hot vector keyed by the first word.
type embedderFake struct {
	mu         sync.Mutex
	batchSizes []int
	failOn     int
	queryErr   error
	short      bool
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchSizes = append(f.batchSizes, len(texts))
	if f.failOn > 0 && len(f.batchSizes) == f.failOn {
		return nil, errors.New("quota exceeded")
	}
	n := len(texts)
	if f.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{1, float32(i)}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return []float32{float32(len(text))}, nil
}

// indexFake answers by sub-query length, which embedderFake encodes in the vector.
type indexFake struct {
	mu         sync.Mutex
	byLength   map[int][]domain.RetrievedDocument
	ks         []int
	thresholds []float64
}

func (f *indexFake) Query(_ context.Context, vector []float32, k int, threshold float64) ([]domain.RetrievedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ks = append(f.ks, k)
	f.thresholds = append(f.thresholds, threshold)
	docs := f.byLength[int(vector[0])]
	if len(docs) > k {
		docs = docs[:k]
	}
	return docs, nil
}

func (f *indexFake) Close() error { return nil }

type sourceTreeFake struct {
	files   map[string]string
	order   []string
	broken  map[string]bool
	listErr error
}

func (f *sourceTreeFake) List(context.Context) ([]string, error) {
	return f.order, f.listErr
}

func (f *sourceTreeFake) Read(_ context.Context, path string) (ports.SourceFile, error) {
	if f.broken[path] {
		return ports.SourceFile{}, errors.New("permission denied")
	}
	return ports.SourceFile{Path: path, Content: f.files[path]}, nil
}

// lineChunker emits one unit chunk per non-blank line.
type lineChunker struct{}

func (lineChunker) Split(path, content string) []domain.SourceChunk {
	var out []domain.SourceChunk
	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, domain.SourceChunk{Content: line, SourcePath: path, Type: domain.ChunkUnit, Ordinal: len(out)})
	}
	return out
}

type buildFake struct {
	store     *storeFake
	docs      []domain.IndexedDocument
	persisted bool
	discarded bool
}

func (b *buildFake) AddDocuments(_ context.Context, docs []domain.IndexedDocument) error {
	b.docs = append(b.docs, docs...)
	return nil
}

func (b *buildFake) Persist(context.Context) (ports.VectorIndex, error) {
	b.persisted = true
	b.store.exists = true
	return &indexFake{}, nil
}

func (b *buildFake) Discard(context.Context) error {
	b.discarded = true
	return nil
}

type storeFake struct {
	exists bool
	opened int
	builds []*buildFake
}

func (s *storeFake) Exists(context.Context) (bool, error) { return s.exists, nil }

func (s *storeFake) Open(context.Context) (ports.VectorIndex, error) {
	s.opened++
	return &indexFake{}, nil
}

func (s *storeFake) NewBuild(context.Context) (ports.IndexBuild, error) {
	b := &buildFake{store: s}
	s.builds = append(s.builds, b)
	return b, nil
}

type waiterFake struct {
	calls int
}

func (w *waiterFake) Wait(ctx context.Context) error {
	w.calls++
	return ctx.Err()
}

type publisherFake struct {
	events []domain.IndexStats
	err    error
}

func (p *publisherFake) PublishIndexBuilt(_ context.Context, stats domain.IndexStats) error {
	p.events = append(p.events, stats)
	return p.err
}

type observerFake struct {
	generations []*domain.GenerationResult
	errs        []error
	batches     []int
	builds      []domain.IndexStats
}

func (o *observerFake) ObserveGeneration(result *domain.GenerationResult, err error, _ float64) {
	o.generations = append(o.generations, result)
	o.errs = append(o.errs, err)
}

func (o *observerFake) ObserveIndexBatch(chunks int) { o.batches = append(o.batches, chunks) }

func (o *observerFake) ObserveIndexBuild(stats domain.IndexStats, _ error) {
	o.builds = append(o.builds, stats)
}

type progressFake struct {
	plans      []domain.RetrievalPlan
	retrievals []string
	collected  []int
}

func (p *progressFake) Planned(plan domain.RetrievalPlan) { p.plans = append(p.plans, plan) }
func (p *progressFake) Retrieving(q string, _ int)        { p.retrievals = append(p.retrievals, q) }
func (p *progressFake) Collected(n int)                   { p.collected = append(p.collected, n) }

func doc(content string, score float64) domain.RetrievedDocument {
	return domain.RetrievedDocument{ID: content, Content: content, SourcePath: "T.java", ChunkType: domain.ChunkUnit, Score: score}
}
