// Package metrics provides Prometheus metrics for the motionscore service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prediction outcomes used as label values.
const (
	OutcomeOK               = "ok"
	OutcomeEmptyInput       = "empty_input"
	OutcomeModelUnavailable = "model_unavailable"
	OutcomeInferenceError   = "inference_error"
	OutcomeCancelled        = "cancelled"
)

// Model load results used as label values.
const (
	LoadSuccess = "success"
	LoadFailure = "failure"
)

// Batch job results used as label values.
const (
	BatchScored    = "scored"
	BatchFailed    = "failed"
	BatchCancelled = "cancelled"
	BatchRejected  = "rejected"
)

var outcomes = map[string]struct{}{
	OutcomeOK:               {},
	OutcomeEmptyInput:       {},
	OutcomeModelUnavailable: {},
	OutcomeInferenceError:   {},
	OutcomeCancelled:        {},
}

// clipLengthBuckets cover typical clip lengths from a fraction of a second
// up to a minute at 30 fps.
var clipLengthBuckets = []float64{1, 10, 25, 50, 75, 100, 150, 300, 600, 1200, 1800}

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Pipeline metrics
	predictions       *prometheus.CounterVec
	predictionLatency prometheus.Histogram
	inferenceLatency  prometheus.Histogram
	clipLength        prometheus.Histogram

	// Model lifecycle metrics
	modelLoads        *prometheus.CounterVec
	modelLoadDuration prometheus.Histogram
	modelBytes        prometheus.Gauge
	modelInputWidth   prometheus.Gauge
	cacheState        prometheus.Gauge

	// Batch metrics
	batchJobs       *prometheus.CounterVec
	batchJobLatency prometheus.Histogram
	batchQueueDepth prometheus.Gauge
	batchWorkers    prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec
	errorLatency        *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "motionscore",
		subsystem:        "scoring",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for all metric definitions
	auto := promauto.With(m.registry)

	m.predictions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "predictions_total",
		Help:        "Total number of predictions by outcome",
		ConstLabels: m.constLabels,
	}, []string{"outcome"})

	m.predictionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "prediction_latency_milliseconds",
		Help:        "End-to-end prediction latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.inferenceLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "inference_latency_milliseconds",
		Help:        "Model run latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.clipLength = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "clip_length_frames",
		Help:        "Number of keypoints in submitted clips before resampling",
		Buckets:     clipLengthBuckets,
		ConstLabels: m.constLabels,
	})

	m.modelLoads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "model",
		Name:        "loads_total",
		Help:        "Model load attempts by result",
		ConstLabels: m.constLabels,
	}, []string{"result"})

	m.modelLoadDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "model",
		Name:        "load_duration_milliseconds",
		Help:        "Time to fetch, verify and build the model in milliseconds",
		Buckets:     prometheus.ExponentialBuckets(10, 2, 12),
		ConstLabels: m.constLabels,
	})

	m.modelBytes = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "model",
		Name:        "bytes",
		Help:        "Size of the currently loaded model artifact",
		ConstLabels: m.constLabels,
	})

	m.modelInputWidth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "model",
		Name:        "input_width",
		Help:        "Declared flattened input width of the loaded model (0 when dynamic)",
		ConstLabels: m.constLabels,
	})

	m.cacheState = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "model",
		Name:        "cache_state",
		Help:        "Session cache state: 0 unloaded, 1 loading, 2 ready",
		ConstLabels: m.constLabels,
	})

	m.batchJobs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "batch",
		Name:        "jobs_total",
		Help:        "Batch scoring jobs by result",
		ConstLabels: m.constLabels,
	}, []string{"result"})

	m.batchJobLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "batch",
		Name:        "job_latency_milliseconds",
		Help:        "Time a worker spent scoring one batch job",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.batchQueueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "batch",
		Name:        "queue_depth",
		Help:        "Jobs waiting for a worker",
		ConstLabels: m.constLabels,
	})

	m.batchWorkers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "batch",
		Name:        "workers",
		Help:        "Running batch workers",
		ConstLabels: m.constLabels,
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        "requests_total",
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "http",
		Name:        "request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByType = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "errors",
		Name:        "by_type_total",
		Help:        "Errors by type and severity",
		ConstLabels: m.constLabels,
	}, []string{"error_type", "severity"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "errors",
		Name:        "by_endpoint_total",
		Help:        "Errors by endpoint, method and type",
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "error_type"})

	m.errorLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "errors",
		Name:        "latency_milliseconds",
		Help:        "Latency of operations that ended in an error",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        "memory_bytes",
		Help:        "Heap bytes allocated",
		ConstLabels: m.constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        "goroutines",
		Help:        "Number of goroutines",
		ConstLabels: m.constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        "gc_pause_milliseconds",
		Help:        "Average GC pause in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
}

// RecordPrediction counts a prediction and observes its latency.
func (m *Manager) RecordPrediction(outcome string, latencyMs float64) error {
	if _, ok := outcomes[outcome]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOutcome, outcome)
	}
	m.predictions.WithLabelValues(outcome).Inc()
	m.predictionLatency.Observe(latencyMs)
	return nil
}

// RecordPrediction records a prediction on the global manager. Unknown
// outcomes are dropped.
func RecordPrediction(outcome string, latencyMs float64) {
	_ = globalManager.RecordPrediction(outcome, latencyMs)
}

// RecordInferenceLatency observes one model run.
func RecordInferenceLatency(latencyMs float64) {
	globalManager.inferenceLatency.Observe(latencyMs)
}

// ObserveClipLength observes the raw length of a submitted clip.
func ObserveClipLength(frames int) {
	globalManager.clipLength.Observe(float64(frames))
}

// RecordModelLoad counts a load attempt and observes its duration.
func RecordModelLoad(result string, durationMs float64) {
	globalManager.modelLoads.WithLabelValues(result).Inc()
	globalManager.modelLoadDuration.Observe(durationMs)
}

// UpdateModelBytes sets the loaded model size.
func UpdateModelBytes(n int) {
	globalManager.modelBytes.Set(float64(n))
}

// UpdateModelInputWidth sets the declared input width of the loaded model.
func UpdateModelInputWidth(width int) {
	globalManager.modelInputWidth.Set(float64(width))
}

// UpdateCacheState sets the session cache state gauge.
func UpdateCacheState(state int) {
	globalManager.cacheState.Set(float64(state))
}

// RecordBatchJob counts a batch job by result.
func RecordBatchJob(result string) {
	globalManager.batchJobs.WithLabelValues(result).Inc()
}

// RecordBatchJobLatency observes the time spent scoring one batch job.
func RecordBatchJobLatency(latencyMs float64) {
	globalManager.batchJobLatency.Observe(latencyMs)
}

// UpdateBatchQueueDepth sets the number of queued batch jobs.
func UpdateBatchQueueDepth(n int) {
	globalManager.batchQueueDepth.Set(float64(n))
}

// UpdateBatchWorkers sets the number of running batch workers.
func UpdateBatchWorkers(n int) {
	globalManager.batchWorkers.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
