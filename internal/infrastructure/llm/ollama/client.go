package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/infrastructure/resilience"
)

type Options struct {
	BaseURL    string
	GenModel   string
	EmbedModel string
	Timeout    time.Duration

	ResilienceExecutor *resilience.Executor
}

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		genModel:   opts.GenModel,
		embedModel: opts.EmbedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.ResilienceExecutor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrProvider, "ollama embed", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

// Completer serves classification, planning and synthesis prompts.
type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	if req.Purpose == domain.PurposeSynthesize {
		ctx = resilience.SingleAttempt(ctx)
	}
	reqBody := map[string]any{
		"model":  c.client.genModel,
		"prompt": req.Prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": req.Temperature,
		},
	}

	var response struct {
		Model    string `json:"model"`
		Response string `json:"response"`
	}
	if err := c.client.call(ctx, "/api/generate", reqBody, &response, "generate."+string(req.Purpose)); err != nil {
		return domain.CompletionResponse{}, err
	}
	return domain.CompletionResponse{
		Text:  strings.TrimSpace(response.Response),
		Model: response.Model,
	}, nil
}
