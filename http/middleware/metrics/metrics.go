package metrics_middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

const namespace = "innotter_stats"

// unmatched labels requests that no route accepted, so probing random paths
// cannot grow the series count.
const unmatched = "unmatched"

type metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewMetrics registers the request counter, the latency histogram and the
// in-flight gauge with reg, or with the default registerer when reg is nil.
// Series are labelled by route pattern, never by the raw path.
func NewMetrics(reg prometheus.Registerer) (func(next http.Handler) http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	labels := []string{"code", "method", "route"}

	m := metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, labels),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds. The stats route scans the projection, so expect it to grow with its size.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, labels),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "HTTP requests currently being served.",
		}),
	}

	for _, collector := range []prometheus.Collector{m.requests, m.latency, m.inFlight} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register http metrics: %w", err)
		}
	}

	return m.middleware, nil
}

func (m metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		m.observe(r, time.Since(start), strconv.Itoa(ww.Status()))
	})
}

func (m metrics) observe(r *http.Request, latency time.Duration, code string) {
	route := unmatched
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			route = pattern
		}
	}

	m.requests.WithLabelValues(code, r.Method, route).Inc()
	observer := m.latency.WithLabelValues(code, r.Method, route)

	spanCtx := trace.SpanContextFromContext(r.Context())
	if exemplar, ok := observer.(prometheus.ExemplarObserver); ok && spanCtx.HasTraceID() && spanCtx.IsSampled() {
		exemplar.ObserveWithExemplar(latency.Seconds(), prometheus.Labels{"trace_id": spanCtx.TraceID().String()})

		return
	}

	observer.Observe(latency.Seconds())
}
