package subscriptions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pushrelay"

var quotaRejected = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "subscriptions",
		Name:      "quota_rejected_total",
		Help:      "Subscribe calls rejected because the site reached its subscriber quota",
	},
)

func recordQuotaRejected() {
	quotaRejected.Inc()
}
