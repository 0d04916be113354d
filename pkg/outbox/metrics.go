package outbox

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	enqueueTotal  *prometheus.CounterVec
	dispatchTotal *prometheus.CounterVec
	deadTotal     *prometheus.CounterVec

	dispatchLatency *prometheus.HistogramVec

	pending     prometheus.Gauge
	claimed     prometheus.Gauge
	deadLetter  prometheus.Gauge
	relayLeader prometheus.Gauge
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		enqueueTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outbox",
			Name:      "enqueue_total",
			Help:      "Total number of outbox enqueue operations.",
		}, []string{"event_type"}),
		dispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outbox",
			Name:      "dispatch_total",
			Help:      "Total number of outbox dispatch operations.",
		}, []string{"event_type", "result"}),
		deadTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outbox",
			Name:      "dead_total",
			Help:      "Total number of entries moved to dead_letter.",
		}, []string{"event_type"}),
		dispatchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "outbox",
			Name:      "dispatch_latency_seconds",
			Help:      "Latency distribution for outbox dispatch.",
			Buckets: []float64{
				0.001, 0.002, 0.005,
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10,
			},
		}, []string{"event_type", "result"}),
		pending: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "outbox",
			Name:      "pending",
			Help:      "Current number of pending entries.",
		}),
		claimed: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "outbox",
			Name:      "claimed",
			Help:      "Current number of claimed pending entries.",
		}),
		deadLetter: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "outbox",
			Name:      "dead_letter",
			Help:      "Current number of dead-lettered entries awaiting operator attention.",
		}),
		relayLeader: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "outbox",
			Name:      "relay_leader",
			Help:      "Whether current instance holds the relay leader lock (1/0).",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
