// Package metrics exposes Prometheus instrumentation for the game backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	RequestTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	ActionTotal   *prometheus.CounterVec
	AttackTotal   *prometheus.CounterVec
	CasinoStaked  prometheus.Counter
	CasinoPaidOut prometheus.Counter

	TickDuration prometheus.Histogram
	TickMaps     prometheus.Gauge
	TickFailures prometheus.Counter

	RateLimited *prometheus.CounterVec
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boomtown_http_requests_total",
				Help: "HTTP requests by route pattern and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "boomtown_http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ActionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boomtown_actions_total",
				Help: "Player actions by type and outcome",
			},
			[]string{"action", "outcome"},
		),
		AttackTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boomtown_attacks_total",
				Help: "Attacks by trick and outcome",
			},
			[]string{"trick", "outcome"},
		),
		CasinoStaked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boomtown_casino_staked_minor_units_total",
			Help: "Total cash staked in the casino",
		}),
		CasinoPaidOut: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boomtown_casino_paid_out_minor_units_total",
			Help: "Total cash paid out by the casino",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "boomtown_tick_duration_seconds",
			Help:    "Duration of one full tick sweep",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		TickMaps: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "boomtown_tick_maps",
			Help: "Maps processed by the most recent tick",
		}),
		TickFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boomtown_tick_map_failures_total",
			Help: "Per-map tick failures",
		}),
		RateLimited: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "boomtown_rate_limited_total",
				Help: "Requests rejected by a rate limit",
			},
			[]string{"scope"},
		),
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware instruments every request with count and latency, labeled by the
// chi route pattern so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		m.RequestTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
		m.RequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}
