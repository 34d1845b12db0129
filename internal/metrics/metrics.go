package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrganCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wealthd_organ_calls_total",
		Help: "Total number of organ calls, labelled by organ and outcome.",
	}, []string{"organ", "outcome"})

	OrganCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wealthd_organ_call_duration_seconds",
		Help:    "End-to-end organ call latency in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"organ"})

	AmountsDebited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wealthd_debited_minor_units_total",
		Help: "Total minor units debited from accounts, labelled by currency.",
	}, []string{"currency"})

	RateLimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wealthd_rate_limit_denials_total",
		Help: "Total organ calls denied by the rate guard, labelled by organ.",
	}, []string{"organ"})

	SecurityRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wealthd_security_rejections_total",
		Help: "Total organ calls rejected by the security guard.",
	})

	Transfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wealthd_transfers_total",
		Help: "Total transfer requests, labelled by terminal state.",
	}, []string{"state"})

	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wealthd_settlement_duration_seconds",
		Help:    "Settlement network submission latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	CallsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wealthd_calls_dropped_total",
		Help: "Total organ calls rejected due to a full gateway queue.",
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wealthd_gateway_queue_utilization_ratio",
		Help: "Current gateway call queue utilization (0–1).",
	})

	AuditSinkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wealthd_audit_sink_errors_total",
		Help: "Total audit events that failed to reach the durable sink.",
	})
)
