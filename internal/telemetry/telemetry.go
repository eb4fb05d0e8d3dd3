// Package telemetry exposes the analyzer's Prometheus metrics. Persistent
// failures in this service are observable only through metrics and the DLQ,
// never through ingestion responses, so every drop and timeout increments a
// counter here.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all analyzer Prometheus metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Pipeline metrics
	PagesProcessed    prometheus.Counter
	PageFailures      prometheus.Counter
	Matches           *prometheus.CounterVec
	RenderEscalations *prometheus.CounterVec
	RendererTimeouts  prometheus.Counter
	PageDuration      prometheus.Histogram
	BatchDuration     prometheus.Histogram
	TasksInflight     prometheus.Gauge

	// Validation metrics
	ValidationScore prometheus.Histogram

	// Evidence queue metrics
	HitsProcessed        prometheus.Counter
	HitsDropped          prometheus.Counter
	ScreenshotsProcessed prometheus.Counter
	ScreenshotsDropped   prometheus.Counter
	ScreenshotFailures   *prometheus.CounterVec
	QueueOverflow        *prometheus.CounterVec
	HitQueueDepth        prometheus.Gauge
	ScreenshotQueueDepth prometheus.Gauge
	FlushDuration        prometheus.Histogram
	DBTimeouts           prometheus.Counter
	ObjstoreErrors       prometheus.Counter

	// DLQ metrics
	DLQEnqueued *prometheus.CounterVec
	DLQDropped  *prometheus.CounterVec
	DLQDepth    *prometheus.GaugeVec
}

// New registers the analyzer metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the analyzer metrics on the given registerer. Tests pass
// a fresh registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{gatherer: prometheus.DefaultGatherer}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	initPipelineMetrics(m, reg)
	initValidationMetrics(m, reg)
	initEvidenceMetrics(m, reg)
	initDLQMetrics(m, reg)
	return m
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint,
// serving whichever registry the metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func initPipelineMetrics(m *Metrics, reg prometheus.Registerer) {
	factory := promauto.With(reg)

	m.PagesProcessed = factory.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_pages_processed_total",
		Help: "Total pages run through the match pipeline",
	})

	m.PageFailures = factory.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_page_failures_total",
		Help: "Total pages that failed processing (isolated, batch continued)",
	})

	m.Matches = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_matches_total",
		Help: "Total match candidates by category and source",
	}, []string{"category", "source"})

	m.RenderEscalations = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_render_escalations_total",
		Help: "Total pages escalated to full browser render",
	}, []string{"forced"})

	m.RendererTimeouts = factory.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_renderer_timeouts_total",
		Help: "Total render service calls that timed out or failed",
	})

	m.PageDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "analyzer_page_duration_seconds",
		Help:    "Time to process a single page",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	m.BatchDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "analyzer_batch_duration_seconds",
		Help:    "Time to process one ingested batch",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})

	m.TasksInflight = factory.NewGauge(prometheus.GaugeOpts{
		Name: "analyzer_tasks_inflight",
		Help: "Tasks with an open batch accumulator",
	})
}

func initValidationMetrics(m *Metrics, reg prometheus.Registerer) {
	factory := promauto.With(reg)

	m.ValidationScore = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "analyzer_validation_score",
		Help:    "Confidence scores returned by the validation gate",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.55, 0.6, 0.7, 0.8, 0.9, 1.0},
	})
}

func initEvidenceMetrics(m *Metrics, reg prometheus.Registerer) {
	factory := promauto.With(reg)

	m.HitsProcessed = factory.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_hits_processed_total",
		Help: "Total validated hits flushed to the database",
	})

	m.HitsDropped = factory.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_hits_dropped_total",
		Help: "Total hits dropped from the hot path (routed to the DLQ)",
	})

	m.ScreenshotsProcessed = factory.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_screenshots_processed_total",
		Help: "Total screenshot jobs completed end to end",
	})

	m.ScreenshotsDropped = factory.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_screenshots_dropped_total",
		Help: "Total screenshot jobs dropped from the hot path (routed to the DLQ)",
	})

	m.ScreenshotFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_screenshot_failures_total",
		Help: "Screenshot job failures by pipeline stage",
	}, []string{"stage"})

	m.QueueOverflow = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_queue_overflow_total",
		Help: "Bounded queue overflow events by queue",
	}, []string{"queue"})

	m.HitQueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Name: "analyzer_hit_queue_depth",
		Help: "Current validated hits waiting for flush",
	})

	m.ScreenshotQueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Name: "analyzer_screenshot_queue_depth",
		Help: "Current screenshot jobs waiting for a worker",
	})

	m.FlushDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "analyzer_flush_duration_seconds",
		Help:    "Time spent in a hit batch flush",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	m.DBTimeouts = factory.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_db_timeouts_total",
		Help: "Database flushes that exceeded their timeout",
	})

	m.ObjstoreErrors = factory.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_objstore_errors_total",
		Help: "Object store upload failures",
	})
}

func initDLQMetrics(m *Metrics, reg prometheus.Registerer) {
	factory := promauto.With(reg)

	m.DLQEnqueued = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_dlq_enqueued_total",
		Help: "Items parked in the dead letter queue by kind",
	}, []string{"kind"})

	m.DLQDropped = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_dlq_dropped_total",
		Help: "DLQ items dropped after exhausting retries",
	}, []string{"kind"})

	m.DLQDepth = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "analyzer_dlq_depth",
		Help: "Current dead letter queue depth by kind",
	}, []string{"kind"})
}
