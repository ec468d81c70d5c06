package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionEventsTotal,
		renewalRetriesTotal,
		planChangesTotal,
	)
}

var (
	subscriptionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_events_total",
			Help: "Subscription lifecycle events (confirmed/renewed/canceled/past_due).",
		},
		[]string{"event"},
	)

	renewalRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "renewal_retries_total",
			Help: "Renewal charge attempts that failed and were scheduled for retry.",
		},
	)

	planChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plan_changes_total",
			Help: "Plan changes by kind (upgrade/downgrade_scheduled/canceled).",
		},
		[]string{"kind"},
	)
)

func IncSubscription(event string) {
	subscriptionEventsTotal.WithLabelValues(norm(event)).Inc()
}

func IncRenewalRetry() {
	renewalRetriesTotal.Inc()
}

func IncPlanChange(kind string) {
	planChangesTotal.WithLabelValues(norm(kind)).Inc()
}
