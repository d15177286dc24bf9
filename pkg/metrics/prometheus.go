// Package metrics provides Prometheus metrics for the rally court scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the rally service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Session lifecycle
	sessionsActive  prometheus.Gauge
	sessionsCreated prometheus.Counter
	sessionsStarted *prometheus.CounterVec
	sessionsExpired prometheus.Counter

	// Rotation
	courtsCompleted     prometheus.Counter
	courtRefills        *prometheus.CounterVec
	pickLatency         prometheus.Histogram
	attendeeTransitions *prometheus.CounterVec
	blockedOperations   *prometheus.CounterVec
	attendeesTotal      prometheus.Gauge
	idleCourts          prometheus.Gauge

	// Registry
	playersTotal      prometheus.Gauge
	registryLatency   *prometheus.HistogramVec
	duplicateRequests prometheus.Counter

	// Command queue (one per session)
	commandsProcessed  *prometheus.CounterVec
	commandLatency     prometheus.Histogram
	commandQueueSize   prometheus.Gauge
	commandEnqueueErrs prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
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
		namespace:        "rally",
		subsystem:        "scheduler",
		histogramBuckets: prometheus.DefBuckets,
		metricPrefix:     "",
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

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	m.sessionsActive = m.gauge("sessions_active", "Number of live sessions held by the service")
	m.sessionsCreated = m.counter("sessions_created_total", "Total number of sessions created")
	m.sessionsStarted = m.counterVec("sessions_started_total", "Total number of sessions moved from lobby to running", "format")
	m.sessionsExpired = m.counter("sessions_expired_total", "Total number of sessions discarded after their idle TTL")

	m.courtsCompleted = m.counter("courts_completed_total", "Total number of games marked finished")
	m.courtRefills = m.counterVec("court_refills_total", "Court fill attempts by outcome", "outcome")
	m.pickLatency = m.histogram("pick_latency_milliseconds", "Time spent selecting the next group from the waiting pool",
		[]float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10})
	m.attendeeTransitions = m.counterVec("attendee_transitions_total", "Attendee lifecycle transitions", "transition")
	m.blockedOperations = m.counterVec("blocked_operations_total", "Operations refused because the attendee is on court", "operation")
	m.attendeesTotal = m.gauge("attendees", "Attendees across all live sessions")
	m.idleCourts = m.gauge("idle_courts", "Courts left idle across all running sessions")

	m.playersTotal = m.gauge("players", "Players in the registry")
	m.registryLatency = m.histogramVec("registry_latency_milliseconds", "Player registry operation latency", "operation")
	m.duplicateRequests = m.counter("duplicate_requests_total", "Court completion requests ignored as duplicates")

	m.commandsProcessed = m.counterVec("commands_processed_total", "Session commands executed by outcome", "command", "outcome")
	m.commandLatency = m.histogram("command_latency_milliseconds", "Time from enqueue to completion of a session command", m.histogramBuckets)
	m.commandQueueSize = m.gauge("command_queue_size", "Commands waiting in the most recently updated session queue")
	m.commandEnqueueErrs = m.counter("command_enqueue_errors_total", "Commands rejected because a session queue was full or closed")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Session lifecycle.

// UpdateSessionsActive sets the number of live sessions.
func UpdateSessionsActive(n int) {
	globalManager.sessionsActive.Set(float64(n))
}

// RecordSessionCreated increments the created sessions counter.
func RecordSessionCreated() {
	globalManager.sessionsCreated.Inc()
}

// RecordSessionStarted increments the started sessions counter for a format.
func RecordSessionStarted(format string) {
	globalManager.sessionsStarted.WithLabelValues(format).Inc()
}

// RecordSessionExpired increments the expired sessions counter.
func RecordSessionExpired() {
	globalManager.sessionsExpired.Inc()
}

// Rotation.

// RecordCourtCompleted increments the finished games counter.
func RecordCourtCompleted() {
	globalManager.courtsCompleted.Inc()
}

// RecordCourtRefill records a fill attempt; outcome is "filled" or "insufficient".
func RecordCourtRefill(outcome string) {
	globalManager.courtRefills.WithLabelValues(outcome).Inc()
}

// RecordPickLatency records how long a PickNext call took.
func RecordPickLatency(latencyMs float64) {
	globalManager.pickLatency.Observe(latencyMs)
}

// RecordAttendeeTransition counts add/remove/pause/unpause transitions.
func RecordAttendeeTransition(transition string) {
	globalManager.attendeeTransitions.WithLabelValues(transition).Inc()
}

// RecordBlockedOperation counts a remove or pause refused for an on-court attendee.
func RecordBlockedOperation(operation string) {
	globalManager.blockedOperations.WithLabelValues(operation).Inc()
}

// UpdateAttendeesTotal sets the attendee count across sessions.
func UpdateAttendeesTotal(n int) {
	globalManager.attendeesTotal.Set(float64(n))
}

// UpdateIdleCourts sets the idle court count across running sessions.
func UpdateIdleCourts(n int) {
	globalManager.idleCourts.Set(float64(n))
}

// Registry.

// UpdatePlayersTotal sets the number of registered players.
func UpdatePlayersTotal(n int) {
	globalManager.playersTotal.Set(float64(n))
}

// RecordRegistryLatency records a registry operation latency.
func RecordRegistryLatency(operation string, latencyMs float64) {
	globalManager.registryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordDuplicateRequest increments the duplicate completion request counter.
func RecordDuplicateRequest() {
	globalManager.duplicateRequests.Inc()
}

// Command queue.

// RecordCommandProcessed counts an executed command; outcome is "ok" or "error".
func RecordCommandProcessed(command, outcome string) {
	globalManager.commandsProcessed.WithLabelValues(command, outcome).Inc()
}

// RecordCommandLatency records the enqueue-to-done latency of a command.
func RecordCommandLatency(latencyMs float64) {
	globalManager.commandLatency.Observe(latencyMs)
}

// UpdateCommandQueueSize sets the current command queue size.
func UpdateCommandQueueSize(size int) {
	globalManager.commandQueueSize.Set(float64(size))
}

// RecordCommandEnqueueError increments the rejected command counter.
func RecordCommandEnqueueError() {
	globalManager.commandEnqueueErrs.Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
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

// System.

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
