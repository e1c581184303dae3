package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode chat request: %v", err)
		}
		if len(payload.Messages) != 1 || payload.Messages[0].Content != "plan this" {
			t.Errorf("unexpected messages %+v", payload.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gen","choices":[{"index":0,"message":{"role":"assistant","content":" [\"a\"] "},"finish_reason":"stop"}]}`))
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"embed","data":[{"object":"embedding","index":1,"embedding":[0,1]},{"object":"embedding","index":0,"embedding":[1,0]}]}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Options{BaseURL: "http://localhost"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestCompleterReturnsFirstChoice(t *testing.T) {
	server := newTestServer(t)
	client, err := New(Options{APIKey: "k", BaseURL: server.URL + "/v1", GenModel: "gen", EmbedModel: "embed"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := NewCompleter(client).Complete(context.Background(), domain.CompletionRequest{
		Purpose: domain.PurposePlan,
		Prompt:  "plan this",
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Text != `["a"]` {
		t.Fatalf("unexpected text %q", resp.Text)
	}
}

func TestEmbedderOrdersByIndex(t *testing.T) {
	server := newTestServer(t)
	client, err := New(Options{APIKey: "k", BaseURL: server.URL + "/v1", EmbedModel: "embed"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	vectors, err := NewEmbedder(client).Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 || vectors[1][1] != 1 {
		t.Fatalf("unexpected vectors %v", vectors)
	}
}

func TestCompleterMapsServerErrorToTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	client, err := New(Options{APIKey: "k", BaseURL: server.URL + "/v1", GenModel: "gen"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = NewCompleter(client).Complete(context.Background(), domain.CompletionRequest{Prompt: "x"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}
