package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tenantguard"

// Outcome labels shared by the guard metrics.
const (
	OutcomeAllow = "allow"
	OutcomeDeny  = "deny"
	OutcomeError = "error"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Guard metrics
	GuardDecisionsTotal *prometheus.CounterVec

	// Rate limiter metrics
	RateLimitDecisionsTotal     *prometheus.CounterVec
	RateLimitBackendErrorsTotal *prometheus.CounterVec
	RateLimitBuckets            prometheus.Gauge

	// External calls: session verifier, membership store, counter store
	ExternalCallDuration *prometheus.HistogramVec

	// Access rule metrics
	RulesDecisionsTotal *prometheus.CounterVec
	RulesReloadsTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		GuardDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guard_decisions_total",
				Help:      "Decisions taken by each pipeline stage",
			},
			[]string{"stage", "outcome", "code"},
		),
		RateLimitDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_decisions_total",
				Help:      "Rate limit decisions by backend",
			},
			[]string{"backend", "allowed"},
		),
		RateLimitBackendErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_backend_errors_total",
				Help:      "Counter store failures, each one denied the request",
			},
			[]string{"backend"},
		),
		RateLimitBuckets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ratelimit_buckets",
				Help:      "Live buckets held by the in-memory counter store",
			},
		),
		ExternalCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "external_call_duration_seconds",
				Help:      "Latency of calls to the session verifier, membership store and counter store",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"dependency", "outcome"},
		),
		RulesDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rules_decisions_total",
				Help:      "Access rule evaluations by operation",
			},
			[]string{"op", "allowed"},
		),
		RulesReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rules_reloads_total",
				Help:      "Rule set reload attempts",
			},
			[]string{"source", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GuardDecisionsTotal,
		m.RateLimitDecisionsTotal,
		m.RateLimitBackendErrorsTotal,
		m.RateLimitBuckets,
		m.ExternalCallDuration,
		m.RulesDecisionsTotal,
		m.RulesReloadsTotal,
	)

	return m
}

// NewNopMetrics returns metrics registered on a throwaway registry, for tests
// and for components constructed without a metrics sink.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// GuardDecision counts one stage decision. A nil receiver is a no-op.
func (m *Metrics) GuardDecision(stage, outcome, code string) {
	if m == nil {
		return
	}
	m.GuardDecisionsTotal.WithLabelValues(stage, outcome, code).Inc()
}

// ObserveExternalCall records the latency of one dependency call.
func (m *Metrics) ObserveExternalCall(dependency string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = OutcomeError
	}
	m.ExternalCallDuration.WithLabelValues(dependency, outcome).Observe(time.Since(start).Seconds())
}

// RateLimitDecision counts one limiter decision for backend.
func (m *Metrics) RateLimitDecision(backend string, allowed bool) {
	if m == nil {
		return
	}
	m.RateLimitDecisionsTotal.WithLabelValues(backend, strconv.FormatBool(allowed)).Inc()
}

// RateLimitBackendError counts one counter store failure.
func (m *Metrics) RateLimitBackendError(backend string) {
	if m == nil {
		return
	}
	m.RateLimitBackendErrorsTotal.WithLabelValues(backend).Inc()
}

// SetBuckets publishes the in-memory bucket count.
func (m *Metrics) SetBuckets(n int) {
	if m == nil {
		return
	}
	m.RateLimitBuckets.Set(float64(n))
}

// RulesDecision counts one access rule evaluation.
func (m *Metrics) RulesDecision(op string, allowed bool) {
	if m == nil {
		return
	}
	m.RulesDecisionsTotal.WithLabelValues(op, strconv.FormatBool(allowed)).Inc()
}

// RulesReload counts one reload attempt from source.
func (m *Metrics) RulesReload(source string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = OutcomeError
	}
	m.RulesReloadsTotal.WithLabelValues(source, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// route names the handler so the label set stays bounded.
func HTTPMetricsMiddleware(metrics *Metrics, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
