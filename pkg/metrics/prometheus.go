// Package metrics provides Prometheus metrics for the UniTry service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the UniTry service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// Try-on generation
	tryOnRequests *prometheus.CounterVec
	tryOnLatency  *prometheus.HistogramVec

	// Jobs
	jobsSubmitted    prometheus.Counter
	jobsDuplicate    prometheus.Counter
	jobsRejected     prometheus.Counter
	jobsFinished     *prometheus.CounterVec
	jobQueueSize     prometheus.Gauge
	jobQueueCapacity prometheus.Gauge
	jobsStored       prometheus.Gauge
	workerActive     prometheus.Gauge

	// Catalog side
	labelLoads *prometheus.CounterVec
	detections *prometheus.CounterVec

	// Uploads
	uploads       *prometheus.CounterVec
	uploadsStored prometheus.Gauge
	uploadBytes   prometheus.Histogram

	// LiblibAI
	liblibRequests *prometheus.CounterVec
	liblibPolls    prometheus.Counter

	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // custom registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "unitry",
		subsystem:        "backend",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of metric definitions
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: constLabels,
		}, labels)
	}
	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: constLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: constLabels,
		})
	}

	m.httpRequests = counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = counterVec("errors_by_endpoint_total",
		"HTTP errors by endpoint, method and error type", "endpoint", "method", "error_type")

	m.tryOnRequests = counterVec("tryon_requests_total",
		"Try-on generations by backend and outcome", "backend", "outcome")
	m.tryOnLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("tryon_latency_seconds"),
		Help:        "Try-on generation latency in seconds",
		Buckets:     []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		ConstLabels: constLabels,
	}, []string{"backend"})

	m.jobsSubmitted = counter("jobs_submitted_total", "Try-on jobs accepted into the queue")
	m.jobsDuplicate = counter("jobs_duplicate_total", "Job submissions answered from an idempotency key")
	m.jobsRejected = counter("jobs_rejected_total", "Job submissions rejected because the queue was full")
	m.jobsFinished = counterVec("jobs_finished_total", "Try-on jobs finished by final status", "status")
	m.jobQueueSize = gauge("job_queue_size", "Current number of queued try-on jobs")
	m.jobQueueCapacity = gauge("job_queue_capacity", "Maximum number of queued try-on jobs")
	m.jobsStored = gauge("jobs_stored", "Try-on jobs currently held in the job store")
	m.workerActive = gauge("worker_active_count", "Number of try-on workers")

	m.labelLoads = counterVec("label_loads_total", "label.json loads by gender and outcome", "gender", "outcome")
	m.detections = counterVec("detections_total", "File-name classifications by detected gender", "gender")

	m.uploads = counterVec("uploads_total", "Preview uploads by outcome", "outcome")
	m.uploadsStored = gauge("uploads_stored", "Preview uploads currently held in memory")
	m.uploadBytes = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("upload_size_bytes"),
		Help:        "Size of accepted preview uploads",
		Buckets:     prometheus.ExponentialBuckets(16*1024, 2, 10),
		ConstLabels: constLabels,
	})

	m.liblibRequests = counterVec("liblib_requests_total", "LiblibAI API calls by endpoint and outcome", "endpoint", "outcome")
	m.liblibPolls = counter("liblib_polls_total", "LiblibAI generation status polls")

	m.errorsByComponent = counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_gc_pause_time_milliseconds"),
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: constLabels,
	})
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByEndpoint records an HTTP error for an endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordTryOn records one try-on generation with its outcome and latency.
func RecordTryOn(backend, outcome string, latency time.Duration) {
	globalManager.tryOnRequests.WithLabelValues(backend, outcome).Inc()
	globalManager.tryOnLatency.WithLabelValues(backend).Observe(latency.Seconds())
}

// RecordJobSubmitted increments the accepted jobs counter.
func RecordJobSubmitted() { globalManager.jobsSubmitted.Inc() }

// RecordJobDuplicate increments the idempotent replay counter.
func RecordJobDuplicate() { globalManager.jobsDuplicate.Inc() }

// RecordJobRejected increments the backpressure counter.
func RecordJobRejected() { globalManager.jobsRejected.Inc() }

// RecordJobFinished increments the finished jobs counter for status.
func RecordJobFinished(status string) { globalManager.jobsFinished.WithLabelValues(status).Inc() }

// UpdateJobQueueSize sets the current queue length.
func UpdateJobQueueSize(size int) { globalManager.jobQueueSize.Set(float64(size)) }

// UpdateJobQueueCapacity sets the queue capacity.
func UpdateJobQueueCapacity(capacity int) { globalManager.jobQueueCapacity.Set(float64(capacity)) }

// UpdateJobsStored sets the number of jobs in the store.
func UpdateJobsStored(count int) { globalManager.jobsStored.Set(float64(count)) }

// UpdateWorkerActiveCount sets the number of workers.
func UpdateWorkerActiveCount(count int) { globalManager.workerActive.Set(float64(count)) }

// RecordLabelLoad records one label.json load attempt.
func RecordLabelLoad(gender, outcome string) {
	globalManager.labelLoads.WithLabelValues(gender, outcome).Inc()
}

// RecordDetection records one file-name classification.
func RecordDetection(gender string) {
	if gender == "" {
		gender = "none"
	}
	globalManager.detections.WithLabelValues(gender).Inc()
}

// RecordUpload records an upload outcome; size is observed for accepted uploads.
func RecordUpload(outcome string, size int64) {
	globalManager.uploads.WithLabelValues(outcome).Inc()
	if outcome == "accepted" {
		globalManager.uploadBytes.Observe(float64(size))
	}
}

// UpdateUploadsStored sets the number of uploads held in memory.
func UpdateUploadsStored(count int) { globalManager.uploadsStored.Set(float64(count)) }

// RecordLiblibRequest records one LiblibAI API call.
func RecordLiblibRequest(endpoint, outcome string) {
	globalManager.liblibRequests.WithLabelValues(endpoint, outcome).Inc()
}

// RecordLiblibPoll increments the status poll counter.
func RecordLiblibPoll() { globalManager.liblibPolls.Inc() }

// RecordErrorByComponent records an error for a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets allocated heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime observes an average GC pause in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom registry used for all service metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
