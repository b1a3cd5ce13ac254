package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	AccountValue = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pusher_account_value",
		Help: "Total wallet plus outstanding-order value in the quote currency",
	})

	BestProfitRate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pusher_best_profit_rate",
		Help: "Best loop profit rate per second for a starting currency",
	}, []string{"currency"})

	OrdersPosted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pusher_orders_posted_total",
		Help: "Orders accepted by the exchange",
	})

	OrdersCancelled = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pusher_orders_cancelled_total",
		Help: "Cancellation requests issued during reconciliation",
	})

	OrderRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pusher_order_rejections_total",
		Help: "Order posts declined by the exchange",
	})

	StaleEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pusher_stale_events_dropped_total",
		Help: "Exchange events dropped for stale sequence or unknown order id",
	})

	EvalLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pusher_eval_latency_seconds",
		Help:    "Time to score all loops for one starting currency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		AccountValue,
		BestProfitRate,
		OrdersPosted,
		OrdersCancelled,
		OrderRejections,
		StaleEventsDropped,
		EvalLatency,
	)
}
