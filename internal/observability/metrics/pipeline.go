package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/testgen-assistant/internal/core/domain"
)

const namespace = "testgen"

// PipelineMetrics records generation requests and index builds. It owns the
// registry that the HTTP metrics register into as well.
type PipelineMetrics struct {
	service  string
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	planSubQueries    *prometheus.HistogramVec
	planFallbackTotal *prometheus.CounterVec
	contextDocuments  *prometheus.HistogramVec

	indexBatchesTotal *prometheus.CounterVec
	indexChunksTotal  *prometheus.CounterVec
	indexBuildsTotal  *prometheus.CounterVec
	indexBuildSeconds *prometheus.HistogramVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Total generation requests by outcome and request kind.",
		},
		[]string{"service", "outcome", "kind"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Generation pipeline duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 180},
		},
		[]string{"service", "outcome"},
	)
	planSubQueries := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "sub_queries",
			Help:      "Distribution of sub-queries per retrieval plan.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6},
		},
		[]string{"service"},
	)
	planFallbackTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "planner",
			Name:      "fallback_total",
			Help:      "Total plans that fell back to the original request.",
		},
		[]string{"service"},
	)
	contextDocuments := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "context_documents",
			Help:      "Distribution of unique context documents per request.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 8},
		},
		[]string{"service"},
	)
	indexBatchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "batches_total",
			Help:      "Total embedding batches written to index builds.",
		},
		[]string{"service"},
	)
	indexChunksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "chunks_total",
			Help:      "Total chunks embedded into index builds.",
		},
		[]string{"service"},
	)
	indexBuildsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "builds_total",
			Help:      "Total index builds by status.",
		},
		[]string{"service", "status"},
	)
	indexBuildSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "build_duration_seconds",
			Help:      "Index build duration in seconds by status.",
			Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		planSubQueries,
		planFallbackTotal,
		contextDocuments,
		indexBatchesTotal,
		indexChunksTotal,
		indexBuildsTotal,
		indexBuildSeconds,
	)

	return &PipelineMetrics{
		service:           service,
		registry:          registry,
		requestsTotal:     requestsTotal,
		requestDuration:   requestDuration,
		planSubQueries:    planSubQueries,
		planFallbackTotal: planFallbackTotal,
		contextDocuments:  contextDocuments,
		indexBatchesTotal: indexBatchesTotal,
		indexChunksTotal:  indexChunksTotal,
		indexBuildsTotal:  indexBuildsTotal,
		indexBuildSeconds: indexBuildSeconds,
	}
}

func (m *PipelineMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) ObserveGeneration(result *domain.GenerationResult, err error, seconds float64) {
	outcome := "error"
	kind := "unknown"
	if err == nil && result != nil {
		outcome = string(result.Outcome)
	}
	if result != nil {
		kind = string(result.Kind)
	}

	m.requestsTotal.WithLabelValues(m.service, outcome, kind).Inc()
	m.requestDuration.WithLabelValues(m.service, outcome).Observe(seconds)
	if result == nil {
		return
	}
	m.planSubQueries.WithLabelValues(m.service).Observe(float64(len(result.Plan.SubQueries)))
	if result.Plan.Fallback {
		m.planFallbackTotal.WithLabelValues(m.service).Inc()
	}
	m.contextDocuments.WithLabelValues(m.service).Observe(float64(result.Context.Len()))
}

func (m *PipelineMetrics) ObserveIndexBatch(chunks int) {
	m.indexBatchesTotal.WithLabelValues(m.service).Inc()
	m.indexChunksTotal.WithLabelValues(m.service).Add(float64(chunks))
}

func (m *PipelineMetrics) ObserveIndexBuild(stats domain.IndexStats, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.indexBuildsTotal.WithLabelValues(m.service, status).Inc()
	m.indexBuildSeconds.WithLabelValues(m.service, status).Observe(stats.Duration.Seconds())
}
