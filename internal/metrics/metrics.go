// Package metrics holds the Prometheus collectors of the API server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	AuthRejectionsTotal *prometheus.CounterVec
	UploadsTotal        *prometheus.CounterVec
	DownloadsTotal      prometheus.Counter
	RecoveryTokensTotal *prometheus.CounterVec
}

// New creates and registers all metrics on registry. A nil registry gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eduaventuras_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eduaventuras_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eduaventuras_auth_rejections_total",
				Help: "Requests rejected by the authentication gate",
			},
			[]string{"reason"},
		),
		UploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eduaventuras_uploads_total",
				Help: "File uploads by kind and result",
			},
			[]string{"kind", "result"},
		),
		DownloadsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eduaventuras_downloads_total",
				Help: "Recorded resource downloads",
			},
		),
		RecoveryTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eduaventuras_recovery_tokens_total",
				Help: "Password recovery token lifecycle events",
			},
			[]string{"event"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthRejectionsTotal,
		m.UploadsTotal,
		m.DownloadsTotal,
		m.RecoveryTokensTotal,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware instruments requests, labelled by chi route pattern to keep
// cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// AuthRejected counts a gate rejection.
func (m *Metrics) AuthRejected(reason string) {
	m.AuthRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecoveryEvent counts a recovery token lifecycle event.
func (m *Metrics) RecoveryEvent(event string) {
	m.RecoveryTokensTotal.WithLabelValues(event).Inc()
}

// Upload counts an upload attempt.
func (m *Metrics) Upload(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.UploadsTotal.WithLabelValues(kind, result).Inc()
}

// Download counts a recorded download.
func (m *Metrics) Download() {
	m.DownloadsTotal.Inc()
}
