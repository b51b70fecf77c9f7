package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the proxy's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	attemptsTotal   prometheus.Counter
	retriesTotal    prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "modelrelay_requests_total",
			Help: "Completed proxy requests by operation and status code.",
		}, []string{"operation", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modelrelay_request_duration_seconds",
			Help:    "End-to-end pipeline latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		attemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "modelrelay_pipeline_attempts_total",
			Help: "Provider invocations, including retries.",
		}),
		retriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "modelrelay_pipeline_retries_total",
			Help: "Pipeline attempts beyond the first.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one completed exchange.
func (m *Metrics) ObserveRequest(operation string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveAttempts records how many provider invocations one exchange took.
func (m *Metrics) ObserveAttempts(attempts int) {
	if attempts <= 0 {
		return
	}
	m.attemptsTotal.Add(float64(attempts))
	if attempts > 1 {
		m.retriesTotal.Add(float64(attempts - 1))
	}
}
