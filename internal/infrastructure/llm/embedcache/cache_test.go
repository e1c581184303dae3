package embedcache

import (
	"context"
	"errors"
	"testing"
)

type countingEmbedder struct {
	queryCalls int
	batchCalls int
	err        error
}

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.batchCalls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (c *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	c.queryCalls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestEmbedQueryHitsProviderOncePerText(t *testing.T) {
	next := &countingEmbedder{}
	cache := New(next, 8)

	first, err := cache.EmbedQuery(context.Background(), "create a hold")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	first[0] = 999

	second, err := cache.EmbedQuery(context.Background(), "create a hold")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if next.queryCalls != 1 {
		t.Fatalf("expected one provider call, got %d", next.queryCalls)
	}
	if second[0] == 999 {
		t.Fatalf("cached vector must not be shared with callers")
	}
}

func TestEmbedQueryDoesNotCacheErrors(t *testing.T) {
	next := &countingEmbedder{err: errors.New("quota")}
	cache := New(next, 8)

	for i := 0; i < 2; i++ {
		if _, err := cache.EmbedQuery(context.Background(), "q"); err == nil {
			t.Fatalf("expected error")
		}
	}
	if next.queryCalls != 2 || cache.Len() != 0 {
		t.Fatalf("errors must not be cached: calls=%d len=%d", next.queryCalls, cache.Len())
	}
}

func TestEmbedPassesThrough(t *testing.T) {
	next := &countingEmbedder{}
	cache := New(next, 8)
	if _, err := cache.Embed(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if next.batchCalls != 1 || cache.Len() != 0 {
		t.Fatalf("batch embeddings must bypass the cache")
	}
}
