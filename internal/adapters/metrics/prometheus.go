// Package metrics provides Prometheus metrics collection.
package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the MetricsCollector port using Prometheus.
type Collector struct {
	queries             *prometheus.CounterVec
	extractionDuration  *prometheus.HistogramVec
	layers              prometheus.Gauge
	regions             prometheus.Gauge
	features            prometheus.Gauge
	surfaceOps          *prometheus.CounterVec
	storageOperations   *prometheus.CounterVec
	storageDuration     *prometheus.HistogramVec
	geocodes            *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewCollector creates a collector on its own registry, together with the
// Go runtime and process collectors.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewCollectorWithRegistry(namespace, reg)
}

// NewCollectorWithRegistry creates a collector registered with reg.
func NewCollectorWithRegistry(namespace string, reg *prometheus.Registry) *Collector {
	if namespace == "" {
		namespace = "mapcore"
	}
	f := promauto.With(reg)

	return &Collector{
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Drawn queries by analysis function and outcome",
		}, []string{"function_type", "status"}),

		extractionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Extraction pipeline call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"function_type"}),

		layers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "layers",
			Help:      "Number of layers in the layer store",
		}),

		regions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "regions",
			Help:      "Number of finalized regions of interest",
		}),

		features: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drawn_features",
			Help:      "Number of drawn query features",
		}),

		surfaceOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "surface_operations_total",
			Help:      "Imperative map surface operations issued by reconciliation",
		}, []string{"operation"}),

		storageOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		}, []string{"operation", "status"}),

		storageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_duration_seconds",
			Help:      "Storage operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		geocodes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Address lookups by outcome",
		}, []string{"status"}),

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		gatherer: reg,
	}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// IncQueryCount counts a query by function type and outcome.
func (c *Collector) IncQueryCount(functionType, status string) {
	c.queries.WithLabelValues(functionType, status).Inc()
}

// ObserveExtractionDuration records an extraction call.
func (c *Collector) ObserveExtractionDuration(functionType string, duration time.Duration) {
	c.extractionDuration.WithLabelValues(functionType).Observe(duration.Seconds())
}

// SetLayers sets the layer gauge.
func (c *Collector) SetLayers(count int) {
	c.layers.Set(float64(count))
}

// SetRegions sets the region gauge.
func (c *Collector) SetRegions(count int) {
	c.regions.Set(float64(count))
}

// SetFeatures sets the drawn feature gauge.
func (c *Collector) SetFeatures(count int) {
	c.features.Set(float64(count))
}

// IncSurfaceOps counts surface operations of one kind.
func (c *Collector) IncSurfaceOps(op string, count int) {
	if count <= 0 {
		return
	}
	c.surfaceOps.WithLabelValues(op).Add(float64(count))
}

// IncStorageOperations increments storage operation counter.
func (c *Collector) IncStorageOperations(operation string, success bool) {
	c.storageOperations.WithLabelValues(operation, status(success)).Inc()
}

// ObserveStorageDuration records storage operation duration.
func (c *Collector) ObserveStorageDuration(operation string, duration time.Duration) {
	c.storageDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncGeocodeCount counts an address lookup.
func (c *Collector) IncGeocodeCount(success bool) {
	c.geocodes.WithLabelValues(status(success)).Inc()
}

// Handler returns the HTTP handler exposing this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations. Requests are labelled
// with the route template so path parameters do not explode cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routeTemplate(r)
		c.httpRequestsTotal.WithLabelValues(r.Method, path, statusClass(wrapped.statusCode)).Inc()
		c.httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent event streams working through the wrapper.
func (w *statusResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
