package heartbeat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pushrelay"

var (
	heartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "received_total",
			Help:      "Heartbeats received by result",
		},
		[]string{"result"},
	)

	staleDeactivated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "stale_deactivated_total",
			Help:      "Subscriptions deactivated for missing heartbeats",
		},
	)
)

func recordHeartbeat(result string) {
	heartbeatsTotal.WithLabelValues(result).Inc()
}

func recordStaleDeactivated(count int64) {
	staleDeactivated.Add(float64(count))
}
