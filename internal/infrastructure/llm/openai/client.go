// Package openai adapts any OpenAI-compatible endpoint (OpenAI, Gemini's
// compatibility layer, vLLM, LocalAI) to the embedding and completion ports.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/infrastructure/resilience"
)

type Options struct {
	APIKey     string
	BaseURL    string
	GenModel   string
	EmbedModel string
	Timeout    time.Duration

	ResilienceExecutor *resilience.Executor
}

type Client struct {
	api        *goopenai.Client
	genModel   string
	embedModel string
	executor   *resilience.Executor
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "openai client", errors.New("OPENAI_API_KEY is required"))
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	cfg := goopenai.DefaultConfig(opts.APIKey)
	if baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	slog.Info("openai_client_init", "base_url", cfg.BaseURL, "gen_model", opts.GenModel, "embed_model", opts.EmbedModel)
	return &Client{
		api:        goopenai.NewClientWithConfig(cfg),
		genModel:   opts.GenModel,
		embedModel: opts.EmbedModel,
		executor:   opts.ResilienceExecutor,
	}, nil
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

	resp, err := resilience.Call(ctx, e.client.executor, "openai.embed", func(callCtx context.Context) (goopenai.EmbeddingResponse, error) {
		return e.client.api.CreateEmbeddings(callCtx, goopenai.EmbeddingRequest{
			Input: texts,
			Model: goopenai.EmbeddingModel(e.client.embedModel),
		})
	}, classifyOpenAIError)
	if err != nil {
		return nil, resilience.WrapTemporary("openai embed", err, classifyOpenAIError)
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, 0, len(data))
	for _, item := range data {
		out = append(out, item.Embedding)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrProvider, "openai embed", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

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
	chatReq := goopenai.ChatCompletionRequest{
		Model: c.client.genModel,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
	}

	operation := "openai.complete." + string(req.Purpose)
	resp, err := resilience.Call(ctx, c.client.executor, operation, func(callCtx context.Context) (goopenai.ChatCompletionResponse, error) {
		return c.client.api.CreateChatCompletion(callCtx, chatReq)
	}, classifyOpenAIError)
	if err != nil {
		return domain.CompletionResponse{}, resilience.WrapTemporary("openai complete", err, classifyOpenAIError)
	}
	if len(resp.Choices) == 0 {
		return domain.CompletionResponse{}, domain.WrapError(domain.ErrProvider, "openai complete", errors.New("no choices returned"))
	}

	slog.Debug("openai_completion", "purpose", req.Purpose, "finish_reason", resp.Choices[0].FinishReason)
	return domain.CompletionResponse{
		Text:  strings.TrimSpace(resp.Choices[0].Message.Content),
		Model: resp.Model,
	}, nil
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return resilience.ClassifyHTTPError(&resilience.HTTPStatusError{StatusCode: apiErr.HTTPStatusCode})
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return resilience.ClassifyHTTPError(&resilience.HTTPStatusError{StatusCode: reqErr.HTTPStatusCode})
	}
	return resilience.ClassifyHTTPError(err)
}
