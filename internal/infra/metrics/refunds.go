package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		refundsTotal,
		refundedAmountTotal,
		refundRequestsTotal,
	)
}

var (
	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Gateway refund executions by outcome (succeeded/rejected/compensated).",
		},
		[]string{"outcome"},
	)

	refundedAmountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refunded_amount_total",
			Help: "The total monetary value refunded through the gateway, in KRW.",
		},
	)

	refundRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refund_requests_total",
			Help: "Refund request tickets by resulting status.",
		},
		[]string{"status"},
	)
)

func IncRefund(outcome string) {
	refundsTotal.WithLabelValues(norm(outcome)).Inc()
}

func AddRefundedAmount(amount int64) {
	refundedAmountTotal.Add(float64(amount))
}

func IncRefundRequest(status string) {
	refundRequestsTotal.WithLabelValues(norm(status)).Inc()
}
