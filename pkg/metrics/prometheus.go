// Package metrics provides Prometheus metrics for the assessment pipeline.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          atomic.Bool
	refreshInterval  atomic.Int64 // nanoseconds
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Pipeline metrics
	uploadsAccepted     prometheus.Counter
	uploadsRejected     *prometheus.CounterVec
	uploadBytes         prometheus.Histogram
	transitions         *prometheus.CounterVec
	failures            *prometheus.CounterVec
	collaboratorLatency *prometheus.HistogramVec
	persistLatency      prometheus.Histogram
	assessmentsByStatus *prometheus.GaugeVec
	staleSwept          prometheus.Counter
	notifications       *prometheus.CounterVec

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue metrics
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueUtilization  prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueDequeued     prometheus.Counter
	queueEnqueueError prometheus.Counter

	// Worker metrics
	workerCount             prometheus.Gauge
	workerBusy              prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "kaushal",
		subsystem:        "assessments",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	m.enabled.Store(true)
	m.refreshInterval.Store(int64(defaultRefreshInterval))

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix != "" {
		return m.metricPrefix + "_" + n
	}
	return n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)
	latencyBuckets := []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 90000}

	m.uploadsAccepted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("uploads_accepted_total"),
		Help: "Uploads accepted by the ingestion endpoint",
	})
	m.uploadsRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("uploads_rejected_total"),
		Help: "Uploads rejected by the ingestion endpoint, by reason",
	}, []string{"reason"})
	m.uploadBytes = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name:    m.name("upload_bytes"),
		Help:    "Size of accepted clips in bytes",
		Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10),
	})
	m.transitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("transitions_total"),
		Help: "Assessment status transitions, by target status",
	}, []string{"status"})
	m.failures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("failures_total"),
		Help: "Assessments that ended failed, by reason",
	}, []string{"reason"})
	m.collaboratorLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name:    m.name("collaborator_latency_milliseconds"),
		Help:    "Latency of calls to the analysis collaborator",
		Buckets: latencyBuckets,
	}, []string{"call", "outcome"})
	m.persistLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name:    m.name("persist_latency_milliseconds"),
		Help:    "Latency of terminal result writes",
		Buckets: m.histogramBuckets,
	})
	m.assessmentsByStatus = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("assessments"),
		Help: "Current number of assessments, by status",
	}, []string{"status"})
	m.staleSwept = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("stale_swept_total"),
		Help: "Processing assessments failed by the watchdog",
	})
	m.notifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("notifications_total"),
		Help: "Status notifications published, by outcome",
	}, []string{"outcome"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("http_requests_total"),
		Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name:    m.name("http_request_duration_milliseconds"),
		Help:    "HTTP request duration in milliseconds",
		Buckets: latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("queue_size"),
		Help: "Current number of analysis jobs waiting",
	})
	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("queue_capacity"),
		Help: "Maximum number of analysis jobs waiting",
	})
	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("queue_utilization_ratio"),
		Help: "Queue size divided by capacity",
	})
	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("queue_enqueued_total"),
		Help: "Analysis jobs enqueued",
	})
	m.queueDequeued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("queue_dequeued_total"),
		Help: "Analysis jobs handed to workers",
	})
	m.queueEnqueueError = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("queue_enqueue_errors_total"),
		Help: "Analysis jobs refused by the queue",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("worker_count"),
		Help: "Configured number of analysis workers",
	})
	m.workerBusy = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("worker_busy"),
		Help: "Workers currently running an analysis",
	})
	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name:    m.name("worker_processing_latency_milliseconds"),
		Help:    "End-to-end job latency inside a worker",
		Buckets: latencyBuckets,
	})
	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("worker_errors_total"),
		Help: "Jobs whose orchestration returned an error",
	})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("errors_by_component_total"),
		Help: "Errors by component and type",
	}, []string{"component", "error_type"})
	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("errors_by_endpoint_total"),
		Help: "HTTP errors by endpoint, method and type",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("system_memory_bytes"),
		Help: "Allocated heap bytes",
	})
	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("system_goroutines"),
		Help: "Number of goroutines",
	})
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name:    m.name("system_gc_pause_milliseconds"),
		Help:    "Average GC pause in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Enabled reports whether recorders write to the metrics.
func (m *Manager) Enabled() bool { return m.enabled.Load() }

// RefreshInterval is the period of the gauge updaters.
func (m *Manager) RefreshInterval() time.Duration {
	return time.Duration(m.refreshInterval.Load())
}

// SetEnabled switches the package-level recorders on or off. Disabled
// recorders return without touching the registry; /healthz keeps serving the
// last values.
func SetEnabled(enabled bool) {
	WithMetricsEnabled(enabled)(globalManager)
}

// SetRefreshInterval sets the gauge updater period. Non-positive values are ignored.
func SetRefreshInterval(interval time.Duration) {
	WithRefreshInterval(interval)(globalManager)
}

// RefreshInterval returns the gauge updater period of the global manager.
func RefreshInterval() time.Duration {
	return globalManager.RefreshInterval()
}

// RecordUploadAccepted counts an accepted upload of the given size.
func RecordUploadAccepted(bytes int64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.uploadsAccepted.Inc()
	globalManager.uploadBytes.Observe(float64(bytes))
}

// RecordUploadRejected counts a rejected upload.
func RecordUploadRejected(reason string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.uploadsRejected.WithLabelValues(reason).Inc()
}

// RecordTransition counts a status transition.
func RecordTransition(status string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.transitions.WithLabelValues(status).Inc()
}

// RecordFailure counts a terminal failure.
func RecordFailure(reason string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.failures.WithLabelValues(reason).Inc()
}

// RecordCollaboratorLatency records one collaborator call.
func RecordCollaboratorLatency(call, outcome string, latencyMs float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.collaboratorLatency.WithLabelValues(call, outcome).Observe(latencyMs)
}

// RecordPersistLatency records a terminal write.
func RecordPersistLatency(latencyMs float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.persistLatency.Observe(latencyMs)
}

// UpdateAssessmentsByStatus sets the gauge for one status.
func UpdateAssessmentsByStatus(status string, count int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.assessmentsByStatus.WithLabelValues(status).Set(float64(count))
}

// RecordStaleSwept counts assessments failed by the watchdog.
func RecordStaleSwept(n int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.staleSwept.Add(float64(n))
}

// RecordNotification counts a status notification.
func RecordNotification(outcome string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.notifications.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.queueEnqueueError.Inc()
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerBusy moves the busy gauge by delta.
func AddWorkerBusy(delta int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.workerBusy.Add(float64(delta))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if !globalManager.Enabled() {
		return
	}
	globalManager.workerErrors.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.Enabled() {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
