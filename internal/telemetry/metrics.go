package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Queue ───────────────────────────────────────────────────────────────────

	QueueTasksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "queue",
		Name:      "tasks_enqueued_total",
		Help:      "Total tasks enqueued by requesters.",
	})

	QueueClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "queue",
		Name:      "claims_total",
		Help:      "Claim polls, labelled by result (claimed or empty).",
	}, []string{"result"})

	QueueTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "queue",
		Name:      "transitions_total",
		Help:      "Task status transitions into the labelled status.",
	}, []string{"status"})

	QueueCompleteRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "queue",
		Name:      "complete_rejected_total",
		Help:      "Result submissions rejected, labelled by reason.",
	}, []string{"reason"})

	// ─── Gate ────────────────────────────────────────────────────────────────────

	GateIngests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "gate",
		Name:      "ingest_total",
		Help:      "Ingest calls, labelled by outcome and reason.",
	}, []string{"outcome", "reason"})

	PaymentVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "payment",
		Name:      "verifications_total",
		Help:      "Payment proof verifications, labelled by strategy and result.",
	}, []string{"strategy", "result"})

	PaymentRailLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "hive",
		Subsystem: "payment",
		Name:      "rail_lookup_seconds",
		Help:      "Latency of payment rail transaction lookups.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	IngestRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "gate",
		Name:      "rate_limited_total",
		Help:      "Ingest calls rejected by the rate limiter.",
	})

	// ─── Agent ───────────────────────────────────────────────────────────────────

	AgentPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hive",
		Subsystem: "agent",
		Name:      "polls_total",
		Help:      "Agent polls, labelled by outcome.",
	}, []string{"outcome"})

	AgentPollInterval = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "hive",
		Subsystem: "agent",
		Name:      "poll_interval_seconds",
		Help:      "Current poll interval of the dispatch loop.",
	})

	AgentTaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hive",
		Subsystem: "agent",
		Name:      "task_duration_seconds",
		Help:      "Task execution time, labelled by output type.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"output_type"})
)
