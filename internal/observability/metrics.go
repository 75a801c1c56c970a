package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsv_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsv_webhook_events_total",
			Help: "Verified webhook events by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	MaterializationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsv_materializations_total",
			Help: "Reservation materializations by outcome",
		},
		[]string{"outcome"},
	)

	RefundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsv_refunds_total",
			Help: "Refund attempts by outcome",
		},
		[]string{"outcome"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rsv_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rsv_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rsv_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
