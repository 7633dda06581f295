package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry        *prometheus.Registry
	operationsTotal *prometheus.CounterVec
	idempotencyHits *prometheus.CounterVec
	inflightOps     prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skinvault_escrow_operations_total",
		Help: "Escrow operations by kind and result",
	}, []string{"op", "result"})

	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "skinvault_idempotency_hits_total",
		Help: "Requests answered from the idempotency store",
	}, []string{"op"})

	inflight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "skinvault_operations_in_flight",
		Help: "Escrow operations currently executing",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(operations, hits, inflight)

	return &metricsRegistry{
		registry:        r,
		operationsTotal: operations,
		idempotencyHits: hits,
		inflightOps:     inflight,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incOp(op, result string) {
	m.operationsTotal.WithLabelValues(op, result).Inc()
}

func (m *metricsRegistry) incCached(op string) {
	m.idempotencyHits.WithLabelValues(op).Inc()
}

func (m *metricsRegistry) opStarted() func() {
	m.inflightOps.Inc()
	return m.inflightOps.Dec
}
