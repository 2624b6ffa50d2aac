package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genrelay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "genrelay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "genrelay",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)

	upstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genrelay",
			Subsystem: "upstream",
			Name:      "errors_total",
			Help:      "Provider calls that failed, by kind (status, transport, timeout)",
		},
		[]string{"kind"},
	)

	relayStreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "genrelay",
			Subsystem: "relay",
			Name:      "streams_total",
			Help:      "Relayed streams by outcome",
		},
		[]string{"outcome"},
	)

	relayDeltasTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "genrelay",
			Subsystem: "relay",
			Name:      "deltas_total",
			Help:      "Content fragments written to clients",
		},
	)

	relaySkippedLinesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "genrelay",
			Subsystem: "relay",
			Name:      "skipped_lines_total",
			Help:      "Upstream data: lines that did not decode",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal, httpRequestDuration, httpInflight,
		upstreamErrorsTotal,
		relayStreamsTotal, relayDeltasTotal, relaySkippedLinesTotal,
	)
}

// statusRecorder wraps http.ResponseWriter to capture status code. Flush is
// forwarded so streamed responses are not buffered.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter { return sr.ResponseWriter }

// MetricsMiddleware instruments requests for Prometheus. Mounted on routes so
// the chi route pattern is known before the handler runs.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routePatternOrPath(r)
		method := r.Method
		httpInflight.WithLabelValues(path).Inc()
		defer httpInflight.WithLabelValues(path).Dec()

		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sr, r)
		statusLabel := strconv.Itoa(sr.status)
		dur := time.Since(start).Seconds()
		httpRequestsTotal.WithLabelValues(path, method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, method, statusLabel).Observe(dur)
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// IncrementUpstreamError counts a failed provider call.
func IncrementUpstreamError(kind string) {
	if kind == "" {
		kind = "other"
	}
	upstreamErrorsTotal.WithLabelValues(kind).Inc()
}

// observeStream records the outcome and counts of one relayed stream.
func observeStream(outcome string, deltas, skipped int) {
	relayStreamsTotal.WithLabelValues(outcome).Inc()
	relayDeltasTotal.Add(float64(deltas))
	relaySkippedLinesTotal.Add(float64(skipped))
}
