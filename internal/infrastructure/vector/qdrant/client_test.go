package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
)

type fakeQdrant struct {
	mu          sync.Mutex
	aliases     map[string]string
	collections map[string]int
	deleted     []string
	searchBody  map[string]any
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{aliases: map[string]string{}, collections: map[string]int{}}
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/aliases":
		type alias struct {
			AliasName      string `json:"alias_name"`
			CollectionName string `json:"collection_name"`
		}
		list := []alias{}
		for a, c := range f.aliases {
			list = append(list, alias{AliasName: a, CollectionName: c})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"aliases": list}})
	case r.Method == http.MethodPost && r.URL.Path == "/collections/aliases":
		var body struct {
			Actions []map[string]map[string]string `json:"actions"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, action := range body.Actions {
			if del, ok := action["delete_alias"]; ok {
				delete(f.aliases, del["alias_name"])
			}
			if create, ok := action["create_alias"]; ok {
				f.aliases[create["alias_name"]] = create["collection_name"]
			}
		}
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/points/search"):
		_ = json.NewDecoder(r.Body).Decode(&f.searchBody)
		_, _ = w.Write([]byte(`{"result":[{"id":"p1","score":0.91,"payload":{"content":"/** doc */ void a() {}","source_path":"A.java","chunk_type":"unit"}},{"id":"p2","score":0.2,"payload":{"content":"low","source_path":"B.java","chunk_type":"unit"}}]}`))
	case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/points"):
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/collections/"):
		f.collections[strings.TrimPrefix(r.URL.Path, "/collections/")] = 1
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/collections/"):
		name := strings.TrimPrefix(r.URL.Path, "/collections/")
		delete(f.collections, name)
		f.deleted = append(f.deleted, name)
		_, _ = w.Write([]byte(`{"result":true}`))
	default:
		http.NotFound(w, r)
	}
}

func indexedDoc(id string, vector ...float32) domain.IndexedDocument {
	return domain.IndexedDocument{
		ID:     id,
		Chunk:  domain.SourceChunk{Content: "content " + id, SourcePath: "A.java", Type: domain.ChunkUnit},
		Vector: vector,
	}
}

func TestBuildPublishesThroughAlias(t *testing.T) {
	fake := newFakeQdrant()
	fake.aliases["code"] = "code_old"
	fake.collections["code_old"] = 1
	server := httptest.NewServer(fake)
	defer server.Close()

	ctx := context.Background()
	store := NewStore(New(server.URL, nil), "code")

	build, err := store.NewBuild(ctx)
	if err != nil {
		t.Fatalf("NewBuild() error = %v", err)
	}
	if err := build.AddDocuments(ctx, []domain.IndexedDocument{indexedDoc("a", 1, 0)}); err != nil {
		t.Fatalf("AddDocuments() error = %v", err)
	}
	staging := build.(*Build).collection
	if fake.aliases["code"] != "code_old" {
		t.Fatalf("alias must not move before persist")
	}

	if _, err := build.Persist(ctx); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if fake.aliases["code"] != staging {
		t.Fatalf("expected alias on %s, got %s", staging, fake.aliases["code"])
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "code_old" {
		t.Fatalf("expected previous collection deleted, got %v", fake.deleted)
	}
}

func TestDiscardDeletesStagingCollection(t *testing.T) {
	fake := newFakeQdrant()
	server := httptest.NewServer(fake)
	defer server.Close()

	ctx := context.Background()
	store := NewStore(New(server.URL, nil), "code")
	build, _ := store.NewBuild(ctx)
	if err := build.AddDocuments(ctx, []domain.IndexedDocument{indexedDoc("a", 1, 0)}); err != nil {
		t.Fatalf("AddDocuments() error = %v", err)
	}
	if err := build.Discard(ctx); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if len(fake.collections) != 0 {
		t.Fatalf("expected staging collection removed, got %v", fake.collections)
	}
	if exists, _ := store.Exists(ctx); exists {
		t.Fatalf("discarded build must not be visible")
	}
}

func TestQuerySendsThresholdAndFilters(t *testing.T) {
	fake := newFakeQdrant()
	fake.aliases["code"] = "code_1"
	server := httptest.NewServer(fake)
	defer server.Close()

	idx, err := NewStore(New(server.URL, nil), "code").Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	docs, err := idx.Query(context.Background(), []float32{1, 0}, 4, 0.5)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if fake.searchBody["score_threshold"] != 0.5 || fake.searchBody["limit"] != float64(4) {
		t.Fatalf("unexpected search body %v", fake.searchBody)
	}
	if len(docs) != 1 || docs[0].SourcePath != "A.java" || docs[0].ChunkType != domain.ChunkUnit {
		t.Fatalf("unexpected documents %+v", docs)
	}
}

func TestOpenWithoutAlias(t *testing.T) {
	server := httptest.NewServer(newFakeQdrant())
	defer server.Close()

	_, err := NewStore(New(server.URL, nil), "code").Open(context.Background())
	if !domain.IsKind(err, domain.ErrIndexNotFound) {
		t.Fatalf("expected index not found, got %v", err)
	}
}

func TestCreateCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	build, _ := NewStore(New(server.URL, nil), "code").NewBuild(context.Background())
	err := build.AddDocuments(context.Background(), []domain.IndexedDocument{indexedDoc("a", 1)})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind for 500, got %v", err)
	}
}
