package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/testgen-assistant/internal/config"
	"github.com/kirillkom/testgen-assistant/internal/core/domain"
	"github.com/kirillkom/testgen-assistant/internal/core/ports"
	"github.com/kirillkom/testgen-assistant/internal/observability/metrics"
)

const maxRequestBytes = 64 << 10

// Indexer loads or rebuilds the index behind the generator.
type Indexer interface {
	LoadIndex(ctx context.Context, rebuild bool) (domain.IndexStats, error)
}

type Router struct {
	cfg         config.Config
	generator   ports.TestGenerator
	planner     ports.RetrievalPlanner
	indexer     Indexer
	httpMetrics *metrics.HTTPServerMetrics
	metricsView http.Handler
}

type Option func(*Router)

// WithMetrics instruments every route and serves the registry at /metrics.
func WithMetrics(httpMetrics *metrics.HTTPServerMetrics, view http.Handler) Option {
	return func(rt *Router) {
		rt.httpMetrics = httpMetrics
		rt.metricsView = view
	}
}

func WithIndexer(indexer Indexer) Option {
	return func(rt *Router) {
		rt.indexer = indexer
	}
}

func NewRouter(cfg config.Config, generator ports.TestGenerator, planner ports.RetrievalPlanner, opts ...Option) *Router {
	rt := &Router{
		cfg:       cfg,
		generator: generator,
		planner:   planner,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

type generateRequest struct {
	Request string `json:"request"`
}

type generateResponse struct {
	*domain.GenerationResult
	Message string `json:"message,omitempty"`
}

type indexRequest struct {
	Rebuild bool `json:"rebuild"`
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("POST /v1/generate", backpressureMiddleware(http.HandlerFunc(rt.generate), rt.cfg.APIMaxInFlight, rt.cfg.APIQueueWait))
	mux.HandleFunc("POST /v1/plan", rt.plan)
	if rt.indexer != nil {
		mux.HandleFunc("POST /v1/index", rt.index)
	}
	if rt.metricsView != nil {
		mux.Handle("GET /metrics", rt.metricsView)
	}

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.httpMetrics != nil {
		handler = rt.httpMetrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	result, err := rt.generator.Generate(r.Context(), req.Request)
	if err != nil {
		rt.writeDomainError(w, r, "generate", err)
		return
	}

	resp := generateResponse{GenerationResult: result}
	if result.Outcome == domain.OutcomeNoContext {
		resp.Message = domain.NoContextMessage
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) plan(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, rt.planner.Plan(r.Context(), strings.TrimSpace(req.Request)))
}

func (rt *Router) index(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid json")
			return
		}
	}

	stats, err := rt.indexer.LoadIndex(r.Context(), req.Rebuild)
	if err != nil {
		rt.writeDomainError(w, r, "index", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, req *generateRequest) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return false
	}
	if strings.TrimSpace(req.Request) == "" {
		writeError(w, r, http.StatusBadRequest, "request is required")
		return false
	}
	return true
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("http_operation_failed", "operation", op, "error", err, "request_id", requestIDFromContext(r.Context()))
	}
	message := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		message = "request timed out"
	}
	writeError(w, r, status, message)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
