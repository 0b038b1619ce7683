package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for flAPI.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ActiveSessions    prometheus.GaugeFunc
	MCPMethodsTotal   *prometheus.CounterVec
	AuthFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
// sessionCount is sampled on each scrape.
func NewMetrics(reg prometheus.Registerer, sessionCount func() float64) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flapi",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "flapi",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ActiveSessions: promauto.With(reg).NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "flapi",
				Name:      "active_sessions",
				Help:      "Number of active MCP sessions",
			},
			sessionCount,
		),
		MCPMethodsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flapi",
				Name:      "mcp_methods_total",
				Help:      "Total JSON-RPC method invocations",
			},
			[]string{"mcp_method"},
		),
		AuthFailuresTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "flapi",
				Name:      "auth_failures_total",
				Help:      "Total authentication failures by layer",
			},
			[]string{"layer"},
		),
	}
}
