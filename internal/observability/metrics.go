package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "entityconfig"

var (
	latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	// Stages and cached resolutions are mostly sub-millisecond.
	fastBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}
	sizeBuckets = prometheus.ExponentialBuckets(128, 8, 6)
)

// Metrics holds the service's Prometheus instruments. Its methods satisfy
// the observer interfaces of the chain, provider, capability and
// importexport packages.
type Metrics struct {
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	httpRequestSize  *prometheus.HistogramVec
	httpResponseSize *prometheus.HistogramVec

	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec

	cacheLookups       *prometheus.CounterVec
	resolutions        *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec

	capabilityLookups *prometheus.CounterVec
	importExportRows  *prometheus.CounterVec

	definitionReloads *prometheus.CounterVec
	definitionsLoaded prometheus.Gauge
}

// InitMetrics creates the instruments and registers them with reg.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}
	histogram := func(subsystem, name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets,
		}, labels)
	}

	return &Metrics{
		httpRequests:     counter("http", "requests_total", "HTTP requests by route and status.", "method", "route", "status"),
		httpDuration:     histogram("http", "request_duration_seconds", "HTTP request latency.", latencyBuckets, "method", "route"),
		httpRequestSize:  histogram("http", "request_size_bytes", "HTTP request body size.", sizeBuckets, "method", "route"),
		httpResponseSize: histogram("http", "response_size_bytes", "HTTP response body size.", sizeBuckets, "method", "route"),

		stageDuration: histogram("chain", "stage_duration_seconds", "Processor stage latency.", fastBuckets, "action", "stage"),
		stageErrors:   counter("chain", "stage_errors_total", "Processor stages that returned an error.", "action", "stage"),

		cacheLookups:       counter("config", "cache_lookups_total", "Config cache lookups by result.", "cache", "result"),
		resolutions:        counter("config", "resolutions_total", "Config resolutions by outcome.", "outcome"),
		resolutionDuration: histogram("config", "resolution_duration_seconds", "Config resolution latency.", fastBuckets, "outcome"),

		capabilityLookups: counter("capability", "cache_lookups_total", "Capability cache lookups by result.", "result"),
		importExportRows:  counter("importexport", "rows_total", "Field rows imported or exported.", "direction", "status"),

		definitionReloads: counter("definitions", "reloads_total", "Definition reloads by status.", "status"),
		definitionsLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "definitions", Name: "loaded",
			Help: "Entity definitions currently loaded.",
		}),
	}
}

func lookupResult(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

// ObserveStage implements chain.StageObserver.
func (m *Metrics) ObserveStage(action, stage string, duration time.Duration, err error) {
	m.stageDuration.WithLabelValues(action, stage).Observe(duration.Seconds())
	if err != nil {
		m.stageErrors.WithLabelValues(action, stage).Inc()
	}
}

func (m *Metrics) ObserveCacheLookup(cache string, hit bool) {
	m.cacheLookups.WithLabelValues(cache, lookupResult(hit)).Inc()
}

func (m *Metrics) ObserveResolution(outcome string, duration time.Duration) {
	m.resolutions.WithLabelValues(outcome).Inc()
	m.resolutionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *Metrics) RecordCapabilityCacheHit()  { m.capabilityLookups.WithLabelValues("hit").Inc() }
func (m *Metrics) RecordCapabilityCacheMiss() { m.capabilityLookups.WithLabelValues("miss").Inc() }

// RecordImportExportRows adds rows to the import or export counter.
func (m *Metrics) RecordImportExportRows(direction, status string, rows int) {
	m.importExportRows.WithLabelValues(direction, status).Add(float64(rows))
}

// RecordDefinitionReload counts a reload attempt and, when it succeeded,
// updates the loaded gauge.
func (m *Metrics) RecordDefinitionReload(status string, loaded int) {
	m.definitionReloads.WithLabelValues(status).Inc()
	if status == "ok" {
		m.definitionsLoaded.Set(float64(loaded))
	}
}

// SetDefinitionsLoaded sets the loaded-definitions gauge.
func (m *Metrics) SetDefinitionsLoaded(count int) {
	m.definitionsLoaded.Set(float64(count))
}

// MetricsMiddleware records request metrics labelled by chi route pattern,
// keeping label cardinality bounded.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := routePattern(r)
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(responseStatus(ww))).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		m.httpRequestSize.WithLabelValues(r.Method, route).Observe(float64(max(r.ContentLength, 0)))
		m.httpResponseSize.WithLabelValues(r.Method, route).Observe(float64(ww.BytesWritten()))
	})
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseStatus reports the status written through ww; handlers that never
// call WriteHeader answer 200.
func responseStatus(ww middleware.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// routePattern returns the matched chi route, or the raw path outside a
// chi router.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	if pattern := strings.TrimSuffix(rctx.RoutePattern(), "/*"); pattern != "" {
		return pattern
	}
	return r.URL.Path
}
