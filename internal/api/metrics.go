package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/dunamismax/pixelproxy/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	fetchDuration     *prometheus.HistogramVec
	fetchFailures     *prometheus.CounterVec
	transformDuration *prometheus.HistogramVec
	bytesIn           prometheus.Counter
	bytesOut          prometheus.Counter
	storeErrors       *prometheus.CounterVec
}

func newMetrics(activeTransforms func() int64) *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelproxy_http_requests_total",
			Help: "Total HTTP requests handled by the proxy.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelproxy_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelproxy_fetch_duration_seconds",
			Help:    "Upstream image retrieval latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelproxy_fetch_failures_total",
			Help: "Rejected upstream retrievals by reason.",
		}, []string{"reason"}),
		transformDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelproxy_transform_duration_seconds",
			Help:    "Resize and encode latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"format", "outcome"}),
		bytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelproxy_source_bytes_total",
			Help: "Total bytes fetched from upstream sources.",
		}),
		bytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pixelproxy_output_bytes_total",
			Help: "Total encoded bytes returned to clients.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelproxy_activity_store_errors_total",
			Help: "Activity store operations that failed.",
		}, []string{"op"}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.fetchDuration,
		m.fetchFailures,
		m.transformDuration,
		m.bytesIn,
		m.bytesOut,
		m.storeErrors,
	)

	if activeTransforms != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pixelproxy_active_transforms",
			Help: "Transforms currently holding a codec slot.",
		}, func() float64 { return float64(activeTransforms()) }))
	}
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := statusLabel(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func (m *metrics) observePipeline(req domain.ProcessingRequest, res pipeline.Result, err error) {
	fetchOutcome := "ok"
	switch {
	case errors.Is(err, pipeline.ErrTimeout):
		fetchOutcome = "timeout"
	case errors.Is(err, pipeline.ErrNotAnImage):
		fetchOutcome = "not_an_image"
	case errors.Is(err, pipeline.ErrUpstreamFetchFailed):
		fetchOutcome = "upstream_fetch_failed"
	}
	m.fetchDuration.WithLabelValues(fetchOutcome).Observe(res.FetchDuration.Seconds())
	if fetchOutcome != "ok" {
		m.fetchFailures.WithLabelValues(fetchOutcome).Inc()
		return
	}
	m.bytesIn.Add(float64(len(res.Source.Data)))

	format := pipeline.FormatName(req.Format)
	transformOutcome := "ok"
	if err != nil {
		transformOutcome = "failed"
	}
	m.transformDuration.WithLabelValues(format, transformOutcome).Observe(res.TransformDuration.Seconds())
	m.bytesOut.Add(float64(len(res.Image.Data)))
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// routeLabel keeps label cardinality bounded: echo paths collapse to one value.
func routeLabel(path string) string {
	switch path {
	case "/health", "/resize", "/container-stats", "/processing-logs", "/metrics":
		return path
	default:
		return "/{path...}"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	if !r.wroteHeader {
		r.status = statusCode
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
