package softlock

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	acquires  *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	swept     prometheus.Counter
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		acquires: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "softlock",
			Name:      "acquires_total",
			Help:      "Total number of successful soft lock acquisitions.",
		}, []string{"entity_type"}),
		conflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "softlock",
			Name:      "conflicts_total",
			Help:      "Total number of acquisitions rejected because another holder has the lock.",
		}, []string{"entity_type"}),
		swept: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "softlock",
			Name:      "swept_total",
			Help:      "Total number of expired locks removed.",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
