package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build several apps.
type Metrics struct {
	reg *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	auth     *prometheus.CounterVec
	wsConns  prometheus.Gauge
	chat     *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hearth", Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route pattern, method and status class.",
		}, []string{"route", "method", "class"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hearth", Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hearth", Subsystem: "auth", Name: "outcomes_total",
			Help: "Auth endpoint outcomes by operation and result.",
		}, []string{"op", "result"}),
		wsConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hearth", Subsystem: "events", Name: "connections",
			Help: "Open session event websocket connections.",
		}),
		chat: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hearth", Subsystem: "chat", Name: "upstream_duration_seconds",
			Help:    "Chat completion latency by result.",
			Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32},
		}, []string{"result"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.latency, m.auth, m.wsConns, m.chat,
	)
	return m
}

// AuthOutcome counts one auth endpoint result.
func (m *Metrics) AuthOutcome(op, result string) {
	m.auth.WithLabelValues(op, result).Inc()
}

// ObserveChat records one upstream completion.
func (m *Metrics) ObserveChat(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.chat.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// middleware labels by chi route pattern so path ids stay out of the label set.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(route, r.Method, statusClass(status)).Inc()
		m.latency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

