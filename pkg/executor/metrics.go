package executor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	commands *prometheus.CounterVec
	replays  *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		commands: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "executor",
			Name:      "commands_total",
			Help:      "Total number of executed commands by result.",
		}, []string{"command", "result"}),
		replays: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "executor",
			Name:      "idempotent_replays_total",
			Help:      "Total number of commands answered from the idempotency store.",
		}, []string{"command"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
