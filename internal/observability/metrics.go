package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the marketplace counters. Build it once per registry.
type Metrics struct {
	Confirmations   *prometheus.CounterVec
	Deals           prometheus.Counter
	ResaleRequests  *prometheus.CounterVec
	ChainHops       prometheus.Histogram
	TxRollbacks     *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	EventsHandled   *prometheus.CounterVec
	FanoutFailures  *prometheus.CounterVec
	PushDelivered   *prometheus.CounterVec
	PushSkipped     *prometheus.CounterVec
	QueueOverflow   prometheus.Counter
	UsersJoined     prometheus.Counter
}

// NewMetrics registers every metric on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freight_confirmations_total",
			Help: "Auction confirmations by request kind and outcome",
		}, []string{"kind", "outcome"}),

		Deals: f.NewCounter(prometheus.CounterOpts{
			Name: "freight_deals_total",
			Help: "Committed auction confirmations",
		}),

		ResaleRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freight_resale_requests_total",
			Help: "Resale listings by action (created, cancelled, expired)",
		}, []string{"action"}),

		ChainHops: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "freight_chain_hops",
			Help:    "Resale hops followed per chain resolution",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 64},
		}),

		TxRollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freight_tx_rollbacks_total",
			Help: "Ledger transactions rolled back, by operation",
		}, []string{"op"}),

		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freight_events_published_total",
			Help: "Domain events handed to the dispatcher after commit",
		}, []string{"kind"}),

		EventsHandled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freight_fanout_events_total",
			Help: "Domain events processed by the notification fan-out",
		}, []string{"kind"}),

		FanoutFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freight_fanout_failures_total",
			Help: "Fan-out handler errors and recovered panics",
		}, []string{"kind", "reason"}),

		PushDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freight_push_delivered_total",
			Help: "Push messages written to a connected client",
		}, []string{"event"}),

		PushSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "freight_push_skipped_total",
			Help: "Push messages dropped because the recipient was offline",
		}, []string{"event"}),

		QueueOverflow: f.NewCounter(prometheus.CounterOpts{
			Name: "freight_dispatch_queue_overflow_total",
			Help: "Publishes that found the dispatch queue full",
		}),

		UsersJoined: f.NewCounter(prometheus.CounterOpts{
			Name: "freight_users_joined_total",
			Help: "Registered users",
		}),
	}
}
