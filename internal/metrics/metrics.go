// Package metrics provides Prometheus metrics for AlertHub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "alerthub"

// Ingest metrics
var (
	// AlertsIngestedTotal counts webhook alerts by incoming status.
	AlertsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "alerts_total",
			Help:      "Total alerts accepted from the webhook",
		},
		[]string{"status"},
	)

	// IngestErrors counts alerts the state machine failed to persist.
	IngestErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "errors_total",
			Help:      "Total alerts rejected on persistence failure",
		},
	)
)

// Dispatch metrics
var (
	// TasksEnqueued counts tasks accepted by the dispatch queue.
	TasksEnqueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "tasks_total",
			Help:      "Total tasks accepted by the pipeline queue",
		},
	)

	// TasksDropped counts tasks rejected because the queue was full.
	TasksDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "dropped_total",
			Help:      "Total tasks dropped on a full queue",
		},
	)

	// QueueDepth tracks tasks waiting for a worker.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "queue_depth",
			Help:      "Tasks waiting for a pipeline worker",
		},
	)

	// PipelineRunsTotal counts pipeline script executions per schedule.
	PipelineRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "pipeline_runs_total",
			Help:      "Total pipeline script executions",
		},
	)
)

// Delivery metrics
var (
	// NotificationsTotal counts delivery attempts by channel and result.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Total notification delivery attempts",
		},
		[]string{"channel", "result"},
	)
)

// Auth metrics
var (
	// AuthAttemptsTotal counts login attempts.
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Total authentication attempts",
		},
		[]string{"result"},
	)
)
