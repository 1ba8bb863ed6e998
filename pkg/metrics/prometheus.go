// Package metrics provides Prometheus metrics for the game status publisher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the publisher.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Game state
	phase       prometheus.Gauge
	currentTick prometheus.Gauge
	watermark   prometheus.Gauge
	teamCount   prometheus.Gauge

	// Emitted events and their delivery
	eventsEmitted        *prometheus.CounterVec
	publishFailures      prometheus.Counter
	publishConsecutive   prometheus.Gauge
	publisherHealthy     prometheus.Gauge
	publishLatency       prometheus.Histogram
	unattributedCaptures prometheus.Counter

	// Data provider
	providerLatency *prometheus.HistogramVec
	providerErrors  *prometheus.CounterVec

	// Loop faults
	integrityFaults *prometheus.CounterVec
	loopFaults      *prometheus.CounterVec
	configBackoffs  prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
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
		namespace:        "ctf",
		subsystem:        "status",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.phase = m.gauge("phase", "Game phase: 0 not started, 1 running, 2 finished")
	m.currentTick = m.gauge("current_tick", "Last tick published")
	m.watermark = m.gauge("capture_watermark", "Highest capture id processed")
	m.teamCount = m.gauge("teams", "Teams in the published roster")

	m.eventsEmitted = m.counterVec("events_emitted_total", "Status events handed to the publisher, by type", "type")
	m.publishFailures = m.counter("publish_failures_total", "Status events the publisher failed to deliver")
	m.publishConsecutive = m.gauge("publish_consecutive_failures", "Publish failures since the last success")
	m.publisherHealthy = m.gauge("publisher_healthy", "1 while consecutive publish failures are below threshold")
	m.publishLatency = promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "publish_latency_milliseconds",
		Help: "Connect, publish and disconnect latency", ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	})
	m.unattributedCaptures = m.counter("unattributed_captures_total", "Captures referencing teams outside the roster")

	m.providerLatency = m.histogramVec("provider_query_latency_milliseconds", "Data provider call latency", "operation")
	m.providerErrors = m.counterVec("provider_errors_total", "Data provider call failures", "operation", "kind")

	m.integrityFaults = m.counterVec("integrity_faults_total", "Aggregate rows rejected against the roster", "kind")
	m.loopFaults = m.counterVec("loop_faults_total", "Loop iterations that ended in a recoverable fault", "kind")
	m.configBackoffs = m.counter("config_backoffs_total", "Iterations backed off because the window is not configured")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")

	m.publisherHealthy.Set(1)
}

// UpdateGameState sets the phase, tick, watermark and team count gauges.
func UpdateGameState(phase int, tick, watermark int64, teams int) {
	globalManager.phase.Set(float64(phase))
	globalManager.currentTick.Set(float64(tick))
	globalManager.watermark.Set(float64(watermark))
	globalManager.teamCount.Set(float64(teams))
}

// RecordEventEmitted counts a status event by its type code.
func RecordEventEmitted(eventType string) {
	globalManager.eventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordPublishFailure counts an undelivered status event.
func RecordPublishFailure() {
	globalManager.publishFailures.Inc()
}

// UpdatePublisherHealth sets the consecutive failure and health gauges.
func UpdatePublisherHealth(consecutive int, healthy bool) {
	globalManager.publishConsecutive.Set(float64(consecutive))
	if healthy {
		globalManager.publisherHealthy.Set(1)
	} else {
		globalManager.publisherHealthy.Set(0)
	}
}

// RecordPublishLatency records one connect/publish/disconnect cycle.
func RecordPublishLatency(latencyMs float64) {
	globalManager.publishLatency.Observe(latencyMs)
}

// RecordUnattributedCapture counts a capture whose teams are not in the roster.
func RecordUnattributedCapture() {
	globalManager.unattributedCaptures.Inc()
}

// RecordProviderQuery records the latency of one data provider call.
func RecordProviderQuery(operation string, latencyMs float64) {
	globalManager.providerLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordProviderError counts a failed data provider call.
func RecordProviderError(operation, kind string) {
	globalManager.providerErrors.WithLabelValues(operation, kind).Inc()
}

// RecordIntegrityFault counts a rejected score or SLA row set.
func RecordIntegrityFault(kind string) {
	globalManager.integrityFaults.WithLabelValues(kind).Inc()
}

// RecordLoopFault counts a recoverable loop iteration failure.
func RecordLoopFault(kind string) {
	globalManager.loopFaults.WithLabelValues(kind).Inc()
}

// RecordConfigBackoff counts a backoff caused by a missing window.
func RecordConfigBackoff() {
	globalManager.configBackoffs.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
