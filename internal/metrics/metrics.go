package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	samplesGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scanmap_samples_generated_total",
			Help: "Total number of boresight samples generated.",
		},
	)

	samplesInvalidTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scanmap_samples_invalid_total",
			Help: "Total number of samples rejected during pointing expansion.",
		},
	)

	accumulateSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scanmap_accumulate_duration_seconds",
			Help:    "Per-observation map accumulation time in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	reduceSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scanmap_reduce_duration_seconds",
			Help:    "All-reduce wait plus merge time in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	mapWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scanmap_map_writes_total",
			Help: "Total number of map products written.",
		},
	)

	workersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scanmap_workers_active",
			Help: "Number of simulation workers currently running.",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scanmap_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scanmap_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

func init() {
	prometheus.MustRegister(samplesGeneratedTotal)
	prometheus.MustRegister(samplesInvalidTotal)
	prometheus.MustRegister(accumulateSeconds)
	prometheus.MustRegister(reduceSeconds)
	prometheus.MustRegister(mapWritesTotal)
	prometheus.MustRegister(workersActive)
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
}

// AddSamplesGenerated records n generated boresight samples.
func AddSamplesGenerated(n int64) {
	samplesGeneratedTotal.Add(float64(n))
}

// AddSamplesInvalid records n samples rejected during pointing expansion.
func AddSamplesInvalid(n int64) {
	samplesInvalidTotal.Add(float64(n))
}

// ObserveAccumulate records the accumulation time for one observation.
func ObserveAccumulate(d time.Duration) {
	accumulateSeconds.Observe(d.Seconds())
}

// ObserveReduce records one all-reduce round. kind is "hits" or "stokes".
func ObserveReduce(kind string, d time.Duration) {
	reduceSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// IncMapWrites records one map product written to storage.
func IncMapWrites() {
	mapWritesTotal.Inc()
}

// SetWorkers records the current number of running simulation workers.
func SetWorkers(n int) {
	workersActive.Set(float64(n))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizeRoute maps a request path to a bounded label set. Anything
// outside the monitor's known routes collapses to "other" so scanners
// probing random paths cannot inflate label cardinality.
func normalizeRoute(path string) string {
	switch path {
	case "/metrics", "/healthz", "/readyz":
		return path
	}
	return "other"
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
