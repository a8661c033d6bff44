package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dpc_retriever"

// Metrics holds the Prometheus counters and histograms for the retrieval pipeline.
type Metrics struct {
	// Retrieval metrics.
	Retrievals        *prometheus.CounterVec   // labels: product, outcome={success,failure}
	RetrievalRetries  *prometheus.CounterVec   // labels: product
	UpstreamRequests  *prometheus.CounterVec   // labels: endpoint, outcome={success,error}
	UpstreamDuration  *prometheus.HistogramVec // labels: endpoint
	AvailabilityCache *prometheus.CounterVec   // labels: result={hit,miss}

	// Processing metrics.
	Processed *prometheus.CounterVec // labels: kind={raster,vector,opaque}, outcome={success,error}

	// Storage metrics.
	Uploads        *prometheus.CounterVec // labels: outcome={success,error}
	CatalogAppends *prometheus.CounterVec // labels: outcome={success,error}
	LockWait       prometheus.Histogram

	PipelineRuns     *prometheus.CounterVec // labels: status
	PipelineDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.Retrievals,
		m.RetrievalRetries,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.AvailabilityCache,
		m.Processed,
		m.Uploads,
		m.CatalogAppends,
		m.LockWait,
		m.PipelineRuns,
		m.PipelineDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests
// can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		Retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      help("Product retrievals by product and outcome."),
		}, []string{"product", "outcome"}),
		RetrievalRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_retries_total",
			Help:      help("Retry waits taken while retrieving a product."),
		}, []string{"product"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      help("DPC API requests by endpoint and outcome."),
		}, []string{"endpoint", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      help("DPC API request duration in seconds."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		AvailabilityCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_cache_total",
			Help:      help("Availability cache lookups by result."),
		}, []string{"result"}),
		Processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processed_total",
			Help:      help("Artifacts processed by kind and outcome."),
		}, []string{"kind", "outcome"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      help("Object uploads by outcome."),
		}, []string{"outcome"}),
		CatalogAppends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_appends_total",
			Help:      help("Catalog record appends by outcome."),
		}, []string{"outcome"}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      help("Time spent waiting for a catalog partition lock."),
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      help("Pipeline invocations by result status."),
		}, []string{"status"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      help("Duration of a complete retrieve-process-store invocation."),
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
}
