package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_reports_total",
			Help: "Total number of telemetry reports received",
		},
		[]string{"status"},
	)

	RateLimitDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_rate_limit_denied_total",
			Help: "Total number of reports denied by admission control",
		},
		[]string{"reason"},
	)

	// Dispatch metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_dispatch_queue_depth",
			Help: "Current depth of the analysis task queue",
		},
	)

	QueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleetwatch_dispatch_queue_capacity",
			Help: "Maximum capacity of the analysis task queue",
		},
	)

	CallerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_dispatch_caller_runs_total",
			Help: "Tasks executed on the publishing goroutine because the queue was full",
		},
	)

	DispatchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetwatch_dispatch_latency_seconds",
			Help:    "Time from event publication to stage execution",
			Buckets: prometheus.DefBuckets,
		},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_stage_failures_total",
			Help: "Total number of contained analysis stage failures",
		},
		[]string{"stage"},
	)

	// Alert metrics
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetwatch_alerts_created_total",
			Help: "Total number of alerts persisted",
		},
		[]string{"type", "severity"},
	)

	AlertsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_alerts_deduplicated_total",
			Help: "Alert creations collapsed into an existing fingerprint",
		},
	)

	AlertsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_alerts_dropped_total",
			Help: "Alert creations abandoned after exhausting retries",
		},
	)

	RetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetwatch_retention_deleted_total",
			Help: "Alerts removed by retention cleanup",
		},
	)
)
