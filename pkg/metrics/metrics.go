package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smefinder/smefinder/pkg/resilience"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	PipelineRunsTotal   *prometheus.CounterVec
	PipelineDuration    *prometheus.HistogramVec
	TicketsIngested     prometheus.Counter
	RecommendationsPerRun prometheus.Histogram

	// Upstream metrics
	AgentInvocations    *prometheus.CounterVec
	RetryAttemptsTotal  *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec

	// Parser metrics
	ParserTierUsed *prometheus.CounterVec

	registry *prometheus.Registry
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "smefinder",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(config *Config) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		PipelineRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of matching-pipeline runs by mode and outcome",
		}, []string{"mode", "outcome"}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end pipeline duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"mode"}),
		TicketsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "tickets_ingested_total",
			Help:      "Total number of tickets accepted from the trigger ingress",
		}),
		RecommendationsPerRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "recommendations_per_run",
			Help:      "Number of recommendations produced per pipeline run",
			Buckets:   []float64{0, 1, 2, 3},
		}),
		AgentInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "agent_invocations_total",
			Help:      "Total number of agent invocations by outcome",
		}, []string{"outcome"}),
		RetryAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "retry_attempts_total",
			Help:      "Total number of retry waits by upstream and error kind",
		}, []string{"upstream", "kind"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per upstream (0=closed, 1=open, 2=half-open)",
		}, []string{"upstream"}),
		ParserTierUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "completion_parser_tier_total",
			Help:      "Completion parser extractions by tier (structured, heuristic, empty)",
		}, []string{"tier"}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PipelineRunsTotal,
		m.PipelineDuration,
		m.TicketsIngested,
		m.RecommendationsPerRun,
		m.AgentInvocations,
		m.RetryAttemptsTotal,
		m.CircuitBreakerState,
		m.ParserTierUsed,
	)

	return m
}

// Handler returns the /metrics HTTP handler
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// GinMiddleware records request counts and latency
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveBreakerState is an OnStateChange hook for circuit breakers
func (m *Metrics) ObserveBreakerState(name string, _, to resilience.CircuitState) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
}

// ObserveRetry is an OnRetry hook recording retry waits per upstream
func (m *Metrics) ObserveRetry(upstream string) func(attempt int, kind resilience.ErrorKind, delay time.Duration) {
	return func(_ int, kind resilience.ErrorKind, _ time.Duration) {
		m.RetryAttemptsTotal.WithLabelValues(upstream, kind.String()).Inc()
	}
}
