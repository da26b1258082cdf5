package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pushrelay"

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "attempts_total",
			Help:      "Delivery attempts by classified outcome",
		},
		[]string{"outcome"},
	)

	attemptDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "attempt_duration_seconds",
			Help:      "Time for one push service round trip",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	fanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "fanout_duration_seconds",
			Help:      "Time from first attempt until all attempts settled",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	prunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "pruned_total",
			Help:      "Subscriptions deactivated after a permanent failure",
		},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "notifications_total",
			Help:      "Notifications by final result",
		},
		[]string{"result"},
	)
)

func recordAttempt(outcome Outcome, duration time.Duration) {
	attemptsTotal.WithLabelValues(outcome.String()).Inc()
	attemptDuration.Observe(duration.Seconds())
}

func recordFanout(duration time.Duration, pruned int) {
	fanoutDuration.Observe(duration.Seconds())
	prunedTotal.Add(float64(pruned))
}

func recordNotification(result string) {
	notificationsTotal.WithLabelValues(result).Inc()
}
