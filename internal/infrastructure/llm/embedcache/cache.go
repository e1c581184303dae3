package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/testgen-assistant/internal/core/ports"
)

const defaultSize = 1024

// Embedder memoizes query embeddings. Batch embeddings used while indexing
// pass through untouched.
type Embedder struct {
	next  ports.Embedder
	cache *lru.Cache[string, []float32]
}

func New(next ports.Embedder, size int) *Embedder {
	if size <= 0 {
		size = defaultSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		cache, _ = lru.New[string, []float32](defaultSize)
	}
	return &Embedder{next: next, cache: cache}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.next.Embed(ctx, texts)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)
	if vector, ok := e.cache.Get(key); ok {
		return cloneVector(vector), nil
	}

	vector, err := e.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, cloneVector(vector))
	return vector, nil
}

func (e *Embedder) Len() int {
	return e.cache.Len()
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
