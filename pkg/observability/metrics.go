package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the request-protection pipeline
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authentication metrics
	AuthAttemptsTotal *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitAdmittedTotal *prometheus.CounterVec
	RateLimitRejectedTotal *prometheus.CounterVec
	RateLimitStoreErrors   prometheus.Counter
	BudgetDebitsTotal      prometheus.Counter
	BudgetRejectionsTotal  prometheus.Counter

	// Circuit breaker metrics
	BreakerTransitionsTotal *prometheus.CounterVec
	BreakerRejectionsTotal  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monay_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "monay_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monay_auth_attempts_total",
				Help: "Authentication attempts by outcome",
			},
			[]string{"outcome"},
		),
		RateLimitAdmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monay_ratelimit_admitted_total",
				Help: "Requests admitted by the rate limiter",
			},
			[]string{"policy"},
		),
		RateLimitRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monay_ratelimit_rejected_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"policy"},
		),
		RateLimitStoreErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "monay_ratelimit_store_errors_total",
				Help: "Counter store failures during rate limiting (fail-open admissions)",
			},
		),
		BudgetDebitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "monay_budget_debits_total",
				Help: "Successful cost-budget debits",
			},
		),
		BudgetRejectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "monay_budget_rejections_total",
				Help: "Requests rejected for exceeding the hourly cost budget",
			},
		),
		BreakerTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monay_breaker_transitions_total",
				Help: "Circuit breaker state transitions",
			},
			[]string{"service", "to"},
		),
		BreakerRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monay_breaker_rejections_total",
				Help: "Calls rejected while a circuit breaker is open",
			},
			[]string{"service"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttemptsTotal,
		m.RateLimitAdmittedTotal,
		m.RateLimitRejectedTotal,
		m.RateLimitStoreErrors,
		m.BudgetDebitsTotal,
		m.BudgetRejectionsTotal,
		m.BreakerTransitionsTotal,
		m.BreakerRejectionsTotal,
	)

	return m
}

// Handler returns the Prometheus scrape handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware records request totals and durations
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
