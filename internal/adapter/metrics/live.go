package metrics

import "github.com/prometheus/client_golang/prometheus"

// LiveMetrics holds Prometheus metrics for the live hub.
type LiveMetrics struct {
	ActiveChannels      prometheus.Gauge
	ActiveSubscriptions prometheus.Gauge
	FramesDelivered     prometheus.Counter
	FetchErrors         prometheus.Counter
	FetchDuration       prometheus.Histogram
	SlowEvicted         prometheus.Counter
}

// NewLiveMetrics creates and registers live hub metrics on the given registry.
func NewLiveMetrics(reg prometheus.Registerer) *LiveMetrics {
	m := &LiveMetrics{
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "active_channels",
			Help:      "Number of live channels with at least one subscription.",
		}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "active_subscriptions",
			Help:      "Number of open live subscriptions.",
		}),
		FramesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "frames_delivered_total",
			Help:      "Total number of frames handed to subscriptions.",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed stream polls.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of stream polls in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		SlowEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "slow_subscribers_evicted_total",
			Help:      "Total number of subscriptions closed because their inbox was full.",
		}),
	}

	reg.MustRegister(m.ActiveChannels, m.ActiveSubscriptions, m.FramesDelivered, m.FetchErrors, m.FetchDuration, m.SlowEvicted)
	return m
}
