package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the console.
type Metrics struct {
	// HTTP metrics (UI surface)
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Backend metrics
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec
	BackendReplaysTotal    prometheus.Counter

	// Session metrics
	TokenRefreshesTotal *prometheus.CounterVec
	SessionExpiries     prometheus.Counter

	// Entity metrics
	ListFetchesTotal *prometheus.CounterVec
	KPIFetchesTotal  *prometheus.CounterVec
	MutationsTotal   *prometheus.CounterVec
	OpenPages        prometheus.Gauge

	// Bulk metrics
	BulkActionsTotal   *prometheus.CounterVec
	BulkActionDuration *prometheus.HistogramVec

	// Transfer metrics
	ExportsTotal    *prometheus.CounterVec
	ImportsTotal    *prometheus.CounterVec
	ImportRowsTotal *prometheus.CounterVec

	// System metrics
	DefinitionReloadTotal *prometheus.CounterVec
	DefinitionsLoaded     prometheus.Gauge
	NotificationsTotal    *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sms_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sms_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sms_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_backend_requests_total",
			Help: "Total number of school API requests.",
		}, []string{"endpoint", "method", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sms_backend_request_duration_seconds",
			Help:    "School API request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"endpoint"}),
		BackendReplaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sms_backend_replays_total",
			Help: "Total number of requests replayed after a token refresh.",
		}),

		// Session
		TokenRefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_token_refreshes_total",
			Help: "Total number of access token refreshes.",
		}, []string{"outcome"}),
		SessionExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sms_session_expiries_total",
			Help: "Total number of forced session expiries.",
		}),

		// Entity
		ListFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_list_fetches_total",
			Help: "Total number of entity list fetches.",
		}, []string{"endpoint", "outcome"}),
		KPIFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_kpi_fetches_total",
			Help: "Total number of KPI fetches.",
		}, []string{"endpoint", "outcome"}),
		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_entity_mutations_total",
			Help: "Total number of entity create, update, and archive calls.",
		}, []string{"endpoint", "operation", "outcome"}),
		OpenPages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sms_open_pages",
			Help: "Number of open entity pages.",
		}),

		// Bulk
		BulkActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_bulk_actions_total",
			Help: "Total number of bulk actions.",
		}, []string{"endpoint", "action", "outcome"}),
		BulkActionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sms_bulk_action_duration_seconds",
			Help:    "Bulk action duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"action"}),

		// Transfer
		ExportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_exports_total",
			Help: "Total number of file exports.",
		}, []string{"endpoint", "format", "outcome"}),
		ImportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_imports_total",
			Help: "Total number of file imports.",
		}, []string{"endpoint", "mode", "outcome"}),
		ImportRowsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_import_rows_total",
			Help: "Total number of imported rows by result.",
		}, []string{"mode", "result"}),

		// System
		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_definition_reload_total",
			Help: "Total definition reloads.",
		}, []string{"status"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sms_definitions_loaded",
			Help: "Number of loaded page definitions.",
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_notifications_total",
			Help: "Total number of user notifications by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Backend
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendReplaysTotal,
		// Session
		m.TokenRefreshesTotal,
		m.SessionExpiries,
		// Entity
		m.ListFetchesTotal,
		m.KPIFetchesTotal,
		m.MutationsTotal,
		m.OpenPages,
		// Bulk
		m.BulkActionsTotal,
		m.BulkActionDuration,
		// Transfer
		m.ExportsTotal,
		m.ImportsTotal,
		m.ImportRowsTotal,
		// System
		m.DefinitionReloadTotal,
		m.DefinitionsLoaded,
		m.NotificationsTotal,
	)

	return m
}

// --- Recording helpers ---
//
// All helpers are safe to call on a nil *Metrics so that packages can be used
// without a registry (CLI commands, tests).

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordBackendRequest records a school API request. Status 0 means the
// request failed before a response was received.
func (m *Metrics) RecordBackendRequest(endpoint, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordBackendReplay records a request replayed with a refreshed token.
func (m *Metrics) RecordBackendReplay() {
	if m == nil {
		return
	}
	m.BackendReplaysTotal.Inc()
}

// RecordTokenRefresh records the outcome ("success" or "failure") of a token refresh.
func (m *Metrics) RecordTokenRefresh(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshesTotal.WithLabelValues(outcome).Inc()
}

// RecordSessionExpiry records a forced session expiry.
func (m *Metrics) RecordSessionExpiry() {
	if m == nil {
		return
	}
	m.SessionExpiries.Inc()
}

// RecordListFetch records a list fetch outcome: "success", "error",
// "cancelled", "stale", or "skipped".
func (m *Metrics) RecordListFetch(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.ListFetchesTotal.WithLabelValues(endpoint, outcome).Inc()
}

// RecordKPIFetch records a KPI fetch outcome.
func (m *Metrics) RecordKPIFetch(endpoint, outcome string) {
	if m == nil {
		return
	}
	m.KPIFetchesTotal.WithLabelValues(endpoint, outcome).Inc()
}

// RecordMutation records a create, update, or archive call.
func (m *Metrics) RecordMutation(endpoint, operation string, success bool) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(endpoint, operation, outcome(success)).Inc()
}

// PageOpened increments the open pages gauge.
func (m *Metrics) PageOpened() {
	if m == nil {
		return
	}
	m.OpenPages.Inc()
}

// PageClosed decrements the open pages gauge.
func (m *Metrics) PageClosed() {
	if m == nil {
		return
	}
	m.OpenPages.Dec()
}

// RecordBulkAction records a bulk action and its duration.
func (m *Metrics) RecordBulkAction(endpoint, action string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.BulkActionsTotal.WithLabelValues(endpoint, action, outcome(success)).Inc()
	m.BulkActionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordExport records a file export.
func (m *Metrics) RecordExport(endpoint, format string, success bool) {
	if m == nil {
		return
	}
	m.ExportsTotal.WithLabelValues(endpoint, format, outcome(success)).Inc()
}

// RecordImport records an import or dry run together with its row counts.
func (m *Metrics) RecordImport(endpoint string, dryRun, success bool, imported, failed int) {
	if m == nil {
		return
	}
	mode := "import"
	if dryRun {
		mode = "dry_run"
	}
	m.ImportsTotal.WithLabelValues(endpoint, mode, outcome(success)).Inc()
	m.ImportRowsTotal.WithLabelValues(mode, "imported").Add(float64(imported))
	m.ImportRowsTotal.WithLabelValues(mode, "failed").Add(float64(failed))
}

// RecordDefinitionReload records a definition reload.
func (m *Metrics) RecordDefinitionReload(status string) {
	if m == nil {
		return
	}
	m.DefinitionReloadTotal.WithLabelValues(status).Inc()
}

// SetDefinitionsLoaded sets the number of loaded page definitions.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	if m == nil {
		return
	}
	m.DefinitionsLoaded.Set(count)
}

// RecordNotification records a user notification of the given kind.
func (m *Metrics) RecordNotification(kind string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
