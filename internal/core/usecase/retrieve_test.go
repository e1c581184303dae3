package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
)

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}

func TestRetrieveBreadthDependsOnPlanLength(t *testing.T) {
	index := &indexFake{byLength: map[int][]domain.RetrievedDocument{}}
	r := NewRetriever(&embedderFake{}, index, DefaultRetrieverOptions())

	if _, err := r.Retrieve(context.Background(), domain.SingleQueryPlan("q")); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(index.ks) != 1 || index.ks[0] != 4 {
		t.Fatalf("expected k=4 for single query plan, got %v", index.ks)
	}

	index.ks = nil
	plan := domain.RetrievalPlan{Request: "r", SubQueries: []string{"a", "bb", "ccc"}}
	if _, err := r.Retrieve(context.Background(), plan); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(index.ks) != 3 {
		t.Fatalf("expected one query per sub-query, got %v", index.ks)
	}
	for _, k := range index.ks {
		if k != 1 {
			t.Fatalf("expected k=1 for decomposed plan, got %v", index.ks)
		}
	}
	for _, th := range index.thresholds {
		if th != 0.5 {
			t.Fatalf("expected threshold 0.5, got %v", index.thresholds)
		}
	}
}

func TestRetrieveDeduplicatesFirstSeenWins(t *testing.T) {
	index := &indexFake{byLength: map[int][]domain.RetrievedDocument{
		1: {doc("X", 0.9)},
		2: {doc("X", 0.7)},
		3: {doc("Y", 0.8)},
	}}
	r := NewRetriever(&embedderFake{}, index, DefaultRetrieverOptions())

	got, err := r.Retrieve(context.Background(), domain.RetrievalPlan{SubQueries: []string{"a", "bb", "ccc"}})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got.Len() != 2 || got.Documents[0].Content != "X" || got.Documents[1].Content != "Y" {
		t.Fatalf("expected [X Y], got %+v", got.Documents)
	}
	if got.Documents[0].Score != 0.9 {
		t.Fatalf("first occurrence must win, got score %v", got.Documents[0].Score)
	}
}

func TestRetrieveConcurrentKeepsPlanOrder(t *testing.T) {
	index := &indexFake{byLength: map[int][]domain.RetrievedDocument{
		1: {doc("first", 0.6)},
		2: {doc("second", 0.9)},
		3: {doc("first", 0.99)},
		4: {doc("fourth", 0.7)},
	}}
	opts := DefaultRetrieverOptions()
	opts.Concurrency = 4
	r := NewRetriever(&embedderFake{}, index, opts)

	got, err := r.Retrieve(context.Background(), domain.RetrievalPlan{SubQueries: []string{"a", "bb", "ccc", "dddd"}})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	want := []string{"first", "second", "fourth"}
	if got.Len() != len(want) {
		t.Fatalf("expected %v, got %+v", want, got.Documents)
	}
	for i := range want {
		if got.Documents[i].Content != want[i] {
			t.Fatalf("expected %v, got %+v", want, got.Documents)
		}
	}
	if got.Documents[0].Score != 0.6 {
		t.Fatalf("plan order must decide which duplicate wins")
	}
}

func TestRetrieveEmbedErrorPropagates(t *testing.T) {
	r := NewRetriever(&embedderFake{queryErr: errors.New("quota")}, &indexFake{}, DefaultRetrieverOptions())
	if _, err := r.Retrieve(context.Background(), domain.SingleQueryPlan("q")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMergeContextIsIdempotent(t *testing.T) {
	perQuery := [][]domain.RetrievedDocument{
		{doc("A", 0.9), doc("B", 0.8)},
		{doc("B", 0.95), doc("C", 0.6)},
	}
	once := MergeContext(perQuery)
	twice := MergeContext([][]domain.RetrievedDocument{once.Documents})
	if once.Len() != 3 || twice.Len() != once.Len() {
		t.Fatalf("expected stable dedup, got %d then %d", once.Len(), twice.Len())
	}
	for i := range once.Documents {
		if once.Documents[i] != twice.Documents[i] {
			t.Fatalf("dedup must not reorder documents")
		}
	}
}

func TestMergeContextEmpty(t *testing.T) {
	if got := MergeContext(nil); !got.Empty() {
		t.Fatalf("expected empty context")
	}
}
