package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service's collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	challengesIssued   prometheus.Counter
	verifications      *prometheus.CounterVec
	sessionsIssued     *prometheus.CounterVec
	sessionsRevoked    prometheus.Counter
	retryAttempts      *prometheus.CounterVec
	deploymentsCreated *prometheus.CounterVec
	rateLimited        *prometheus.CounterVec
}

// NewMetrics creates and registers every collector
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		challengesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neobank_challenges_issued_total",
			Help: "Login challenges issued.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neobank_signature_verifications_total",
			Help: "Challenge signature verifications by auth method and result.",
		}, []string{"method", "result"}),
		sessionsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neobank_sessions_issued_total",
			Help: "Sessions issued by source.",
		}, []string{"source"}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "neobank_sessions_revoked_total",
			Help: "Sessions revoked through logout.",
		}),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neobank_login_retries_total",
			Help: "Retried login phase attempts.",
		}, []string{"phase"}),
		deploymentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neobank_deployments_recorded_total",
			Help: "Account deployments persisted by mode.",
		}, []string{"mode"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "neobank_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"action"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.challengesIssued, m.verifications, m.sessionsIssued, m.sessionsRevoked,
		m.retryAttempts, m.deploymentsCreated, m.rateLimited,
	)
	return m
}

// Registry exposes the underlying registry for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Instrument records RPS, latency and in-flight requests per route
func (m *Metrics) Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		m.httpInFlight.Inc()
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpInFlight.Dec()
	}
}

func (m *Metrics) ChallengeIssued() {
	if m != nil {
		m.challengesIssued.Inc()
	}
}

func (m *Metrics) Verification(method, result string) {
	if m != nil {
		m.verifications.WithLabelValues(method, result).Inc()
	}
}

func (m *Metrics) SessionIssued(source string) {
	if m != nil {
		m.sessionsIssued.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) SessionRevoked() {
	if m != nil {
		m.sessionsRevoked.Inc()
	}
}

func (m *Metrics) RetryAttempt(phase string) {
	if m != nil {
		m.retryAttempts.WithLabelValues(phase).Inc()
	}
}

func (m *Metrics) DeploymentRecorded(mode string) {
	if m != nil {
		m.deploymentsCreated.WithLabelValues(mode).Inc()
	}
}

func (m *Metrics) RateLimited(action string) {
	if m != nil {
		m.rateLimited.WithLabelValues(action).Inc()
	}
}
