package metrics

import "github.com/prometheus/client_golang/prometheus"

// FlightMetrics holds Prometheus metrics for the Arrow Flight client.
type FlightMetrics struct {
	Calls        *prometheus.CounterVec
	TicketCache  *prometheus.CounterVec
	BreakerState prometheus.Gauge
}

// NewFlightMetrics creates and registers Flight client metrics on the given registry.
func NewFlightMetrics(reg prometheus.Registerer) *FlightMetrics {
	m := &FlightMetrics{
		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flight",
			Name:      "calls_total",
			Help:      "Total number of Flight RPCs, by method and status.",
		}, []string{"method", "status"}),
		TicketCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flight",
			Name:      "ticket_cache_total",
			Help:      "Ticket cache lookups, by result (hit/miss/invalidate).",
		}, []string{"result"}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "flight",
			Name:      "circuit_breaker_state",
			Help:      "Current DoGet circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(m.Calls, m.TicketCache, m.BreakerState)
	return m
}
