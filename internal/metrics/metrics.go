// Package metrics holds the Prometheus instruments of the engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FeedMessages     *prometheus.CounterVec
	FeedRejected     *prometheus.CounterVec
	LiveBooks        prometheus.Gauge
	Relationships    prometheus.Gauge
	Chains           prometheus.Gauge
	Opportunities    *prometheus.CounterVec
	EvalLatencyMs    prometheus.Histogram
	ExchangeRequests *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
}

// New creates the metrics on a fresh registry, together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FeedMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kalshiarb_feed_messages_total",
			Help: "Order book feed messages applied, by type",
		}, []string{"type"}),

		FeedRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kalshiarb_feed_rejected_total",
			Help: "Order book feed messages rejected as data-quality faults, by reason",
		}, []string{"reason"}),

		LiveBooks: f.NewGauge(prometheus.GaugeOpts{
			Name: "kalshiarb_live_books",
			Help: "Number of markets with a live order book",
		}),

		Relationships: f.NewGauge(prometheus.GaugeOpts{
			Name: "kalshiarb_relationships",
			Help: "Relationships among tracked markets",
		}),

		Chains: f.NewGauge(prometheus.GaugeOpts{
			Name: "kalshiarb_chains",
			Help: "Implication chains among tracked markets",
		}),

		Opportunities: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kalshiarb_opportunities_total",
			Help: "Arbitrage opportunities recorded, by strategy",
		}, []string{"strategy"}),

		EvalLatencyMs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kalshiarb_eval_latency_ms",
			Help:    "Time to evaluate strategies after a book update in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100},
		}),

		ExchangeRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kalshiarb_exchange_requests_total",
			Help: "Exchange REST requests, by endpoint and status class",
		}, []string{"endpoint", "status"}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kalshiarb_errors_total",
			Help: "Total number of errors by component and type",
		}, []string{"component", "error_type"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordFeedMessage counts an applied feed message.
func (m *Metrics) RecordFeedMessage(msgType string) {
	if m == nil {
		return
	}
	m.FeedMessages.WithLabelValues(msgType).Inc()
}

// RecordFeedRejected counts a rejected feed message.
func (m *Metrics) RecordFeedRejected(reason string) {
	if m == nil {
		return
	}
	m.FeedRejected.WithLabelValues(reason).Inc()
}

// SetLiveBooks records the number of live books.
func (m *Metrics) SetLiveBooks(n int) {
	if m == nil {
		return
	}
	m.LiveBooks.Set(float64(n))
}

// SetGraph records the size of the relationship graph.
func (m *Metrics) SetGraph(relationships, chains int) {
	if m == nil {
		return
	}
	m.Relationships.Set(float64(relationships))
	m.Chains.Set(float64(chains))
}

// RecordOpportunity counts a recorded opportunity.
func (m *Metrics) RecordOpportunity(strategy string) {
	if m == nil {
		return
	}
	m.Opportunities.WithLabelValues(strategy).Inc()
}

// RecordEvalLatency records strategy evaluation time.
func (m *Metrics) RecordEvalLatency(ms float64) {
	if m == nil {
		return
	}
	m.EvalLatencyMs.Observe(ms)
}

// RecordExchangeRequest counts an exchange REST call.
func (m *Metrics) RecordExchangeRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.ExchangeRequests.WithLabelValues(endpoint, status).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
