package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exported on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Engine metrics
	ProjectionsTotal  *prometheus.CounterVec
	RenewalsAdvanced  prometheus.Counter
	ChargesRecorded   prometheus.Counter
	RenewalRunsTotal  *prometheus.CounterVec
	RenewalRunSeconds prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subtrack_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subtrack_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ProjectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subtrack_projections_total",
				Help: "Renewal projections served, by kind",
			},
			[]string{"kind"},
		),
		RenewalsAdvanced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "subtrack_renewals_advanced_total",
				Help: "Subscriptions moved forward to their next renewal",
			},
		),
		ChargesRecorded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "subtrack_charges_recorded_total",
				Help: "Billing records written by the renewal advancer",
			},
		),
		RenewalRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subtrack_renewal_runs_total",
				Help: "Renewal advancer runs, by outcome",
			},
			[]string{"status"},
		),
		RenewalRunSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "subtrack_renewal_run_duration_seconds",
				Help:    "Renewal advancer run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	m.registry.MustRegister(
		prometheus.NewGoCollector(),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ProjectionsTotal,
		m.RenewalsAdvanced,
		m.ChargesRecorded,
		m.RenewalRunsTotal,
		m.RenewalRunSeconds,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware instruments requests. Routes are labelled by their chi pattern
// so /api/subscriptions/{id} stays one series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
