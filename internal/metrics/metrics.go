// Package metrics exposes Prometheus instrumentation for façade operations and the
// HTTP backend.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/codexmonitor/gitfacade/internal/vcserr"
)

const namespace = "gitfacade"

// OutcomeOK labels operations that returned no error.
const OutcomeOK = "ok"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors on reg. Passing prometheus.DefaultRegisterer exposes
// them through promhttp.Handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of façade operations by outcome",
		}, []string{"operation", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of façade operations in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operations_in_flight",
			Help:      "Current number of running façade operations",
		}, []string{"operation"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of backend HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of backend HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// OperationStarted marks op as running. The returned func must be called once the
// operation finishes.
func (m *Metrics) OperationStarted(op string) func() {
	if m == nil {
		return func() {}
	}
	gauge := m.inFlight.WithLabelValues(op)
	gauge.Inc()
	return gauge.Dec
}

// ObserveOperation records the outcome and duration of op. The outcome label is the
// error kind, or "ok".
func (m *Metrics) ObserveOperation(op string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, Outcome(err)).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

// Outcome returns the metric label for err.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	return vcserr.KindOf(err).String()
}

// GinMiddleware records request counts and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequests.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
