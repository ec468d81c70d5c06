package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		compensationRecordsTotal,
		compensationPending,
	)
}

var (
	compensationRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compensation_records_total",
			Help: "Compensation records created, labeled by the interrupted operation.",
		},
		[]string{"operation"},
	)

	compensationPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "compensation_pending",
			Help: "Compensation records currently awaiting resolution.",
		},
	)
)

func IncCompensation(operation string) {
	compensationRecordsTotal.WithLabelValues(norm(operation)).Inc()
}

func SetCompensationPending(n int) {
	compensationPending.Set(float64(n))
}
