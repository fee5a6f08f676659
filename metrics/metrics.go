// Package metrics exposes Prometheus instrumentation for the alert pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_records_processed_total",
			Help: "Total number of log records evaluated",
		},
	)

	AlertsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_alerts_generated_total",
			Help: "Total number of candidate alerts generated",
		},
		[]string{"severity", "detector"},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_alerts_suppressed_total",
			Help: "Total number of alerts suppressed by deduplication",
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_notifications_sent_total",
			Help: "Total number of notification deliveries by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	PartialDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "argus_partial_deliveries_total",
			Help: "Total number of alerts where some but not all channels succeeded",
		},
	)

	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_poll_cycles_total",
			Help: "Total number of poll cycles by outcome",
		},
		[]string{"status"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "argus_cycle_duration_seconds",
			Help:    "Time taken for one poll-evaluate-dispatch cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	DedupStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "argus_dedup_store_errors_total",
			Help: "Total number of deduplication store failures",
		},
		[]string{"store"},
	)
)
