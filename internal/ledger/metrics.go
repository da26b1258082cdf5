package ledger

import (
	"github.com/bissquit/push-relay/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pushrelay"

var callbacksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "callbacks_total",
		Help:      "Client delivery and click callbacks by result",
	},
	[]string{"outcome", "result"},
)

func recordCallback(outcome domain.DeliveryOutcome, result string) {
	callbacksTotal.WithLabelValues(string(outcome), result).Inc()
}
