// Package metrics defines the Prometheus collectors of the ordering pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "toko"

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	Requests         *prometheus.CounterVec
	LatencyMS        *prometheus.HistogramVec
	Checkouts        *prometheus.CounterVec
	Webhooks         *prometheus.CounterVec
	Materializations *prometheus.CounterVec
	MaterializeTries prometheus.Histogram
	SweptLines       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"route"}),
		Checkouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhooks_total",
			Help:      "Payment webhook deliveries by outcome.",
		}, []string{"outcome"}),
		Materializations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_materializations_total",
			Help:      "Order materializations by outcome.",
		}, []string{"outcome"}),
		MaterializeTries: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_materialization_attempts",
			Help:      "Transaction attempts needed per materialization.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		SweptLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_sweep_lines_total",
			Help:      "Expired reservation lines seen by the sweeper, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.Requests, m.LatencyMS, m.Checkouts, m.Webhooks, m.Materializations, m.MaterializeTries, m.SweptLines)
	return m
}

func (m *Metrics) Checkout(outcome string) {
	if m != nil {
		m.Checkouts.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Webhook(outcome string) {
	if m != nil {
		m.Webhooks.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Materialization(outcome string, attempts int) {
	if m != nil {
		m.Materializations.WithLabelValues(outcome).Inc()
		m.MaterializeTries.Observe(float64(attempts))
	}
}

func (m *Metrics) Swept(outcome string, n int) {
	if m != nil && n > 0 {
		m.SweptLines.WithLabelValues(outcome).Add(float64(n))
	}
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if m == nil {
			return err
		}
		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
		return err
	}
}

// Handler serves the registry gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
