package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipwave_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipwave_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Upload Metrics
	VideoUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipwave_video_uploads_total",
			Help: "Total number of video uploads by validation result",
		},
		[]string{"result"},
	)

	VideoUploadSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clipwave_video_upload_size_bytes",
			Help:    "Size of accepted uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024*1024, 2, 12), // 1MB to 2GB
		},
	)

	// Project Metrics
	ProjectsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipwave_projects_created_total",
			Help: "Total number of projects created",
		},
	)

	ProjectsDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipwave_projects_deleted_total",
			Help: "Total number of projects deleted",
		},
	)

	// Processing Metrics
	ProcessingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipwave_processing_runs_total",
			Help: "Total number of simulated processing runs by outcome",
		},
		[]string{"outcome"},
	)

	ProcessingInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipwave_processing_in_progress",
			Help: "Number of processing runs currently active",
		},
	)

	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipwave_processing_duration_seconds",
			Help:    "Processing run duration in seconds",
			Buckets: prometheus.LinearBuckets(1, 3, 10), // 1s to 28s
		},
		[]string{"outcome"},
	)

	// Object URL Metrics
	ObjectURLsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipwave_object_urls_live",
			Help: "Number of object URLs currently allocated",
		},
	)

	ObjectURLOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipwave_object_url_operations_total",
			Help: "Total number of object URL operations",
		},
		[]string{"operation", "status"},
	)

	// Persistence Metrics
	PersistenceOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipwave_persistence_operations_total",
			Help: "Total number of snapshot load/save operations",
		},
		[]string{"backend", "operation", "status"},
	)

	PersistenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipwave_persistence_duration_seconds",
			Help:    "Snapshot load/save duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"backend", "operation"},
	)

	// Auth Metrics
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipwave_auth_attempts_total",
			Help: "Total number of signup and login attempts",
		},
		[]string{"method", "status"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipwave_active_sessions",
			Help: "Number of signed-in sessions",
		},
	)

	// Collaborator Metrics
	AssistantRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipwave_assistant_requests_total",
			Help: "Total number of chat completions by result",
		},
		[]string{"result"},
	)

	MetadataLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipwave_metadata_lookups_total",
			Help: "Total number of video metadata lookups by result",
		},
		[]string{"result"},
	)

	// Cache Metrics
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipwave_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipwave_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// Event Metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipwave_events_published_total",
			Help: "Total number of project events published",
		},
		[]string{"sink", "type"},
	)

	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipwave_events_consumed_total",
			Help: "Total number of project events consumed by the worker",
		},
		[]string{"type", "status"},
	)

	EventQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipwave_event_queue_depth",
			Help: "Number of lifecycle events waiting in the queue",
		},
	)

	WebsocketSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipwave_websocket_subscribers",
			Help: "Number of connected progress subscribers",
		},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipwave_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// Helper functions for recording metrics

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordUpload records an upload validation result; size is observed only when accepted
func RecordUpload(result string, size int64) {
	VideoUploadsTotal.WithLabelValues(result).Inc()
	if result == "accepted" {
		VideoUploadSizeBytes.Observe(float64(size))
	}
}

// RecordProcessingStarted marks a run as active
func RecordProcessingStarted() {
	ProcessingInProgress.Inc()
}

// RecordProcessingFinished records the end of a run
func RecordProcessingFinished(outcome string, duration float64) {
	ProcessingInProgress.Dec()
	ProcessingRunsTotal.WithLabelValues(outcome).Inc()
	ProcessingDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordObjectURL records an object URL operation and moves the live gauge
func RecordObjectURL(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ObjectURLOperationsTotal.WithLabelValues(operation, status).Inc()
	if err != nil {
		return
	}
	switch operation {
	case "create", "adopt":
		ObjectURLsLive.Inc()
	case "revoke":
		ObjectURLsLive.Dec()
	}
}

// RecordPersistence records a snapshot operation
func RecordPersistence(backend, operation, status string, duration float64) {
	PersistenceOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	PersistenceDuration.WithLabelValues(backend, operation).Observe(duration)
}

// RecordAuthAttempt records a signup or login attempt
func RecordAuthAttempt(method, status string) {
	AuthAttemptsTotal.WithLabelValues(method, status).Inc()
}

// RecordCacheAccess records cache hit or miss
func RecordCacheAccess(cacheType string, hit bool) {
	if hit {
		CacheHitsTotal.WithLabelValues(cacheType).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(cacheType).Inc()
	}
}

// RecordEventPublished records an event handed to a sink
func RecordEventPublished(sink, eventType string) {
	EventsPublishedTotal.WithLabelValues(sink, eventType).Inc()
}

// RecordEventConsumed records an event taken off the queue
func RecordEventConsumed(eventType, status string) {
	EventsConsumedTotal.WithLabelValues(eventType, status).Inc()
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
