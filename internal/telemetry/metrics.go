package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка. Регистрируются в глобальном реестре Prometheus
// и отдаются через promhttp.Handler() на /metrics.
var (
	// PipelineTransitions — переходы статусов pipeline runs.
	PipelineTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "pipeline_transitions_total",
		Help:      "Pipeline run status transitions",
	}, []string{"pipeline_id", "status"})

	// TaskTransitions — переходы статусов задач.
	TaskTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "task_transitions_total",
		Help:      "Task status transitions",
	}, []string{"pipeline_id", "pipeline_task", "status"})

	// TaskDuration — время выполнения задач (от RUNNING до финального статуса).
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "conveyor",
		Name:      "task_duration_seconds",
		Help:      "Task execution time",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"pipeline_id", "pipeline_task", "status"})

	// ActiveRuns — pipeline runs в статусе RUNNING.
	ActiveRuns = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "conveyor",
		Name:      "active_runs",
		Help:      "Pipeline runs currently running",
	}, []string{"pipeline_id"})

	// ChainSteps — шаги async-цепочек, выполненные воркерами.
	ChainSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "chain_steps_total",
		Help:      "Async chain items executed",
	}, []string{"kind", "outcome"})

	// HTTPRequests — запросы к API по маршруту и статусу.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "HTTP requests handled by the API",
	}, []string{"method", "route", "status"})

	// HTTPDuration — время обработки запросов API.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "conveyor",
		Subsystem: "api",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// ScheduledRuns — запуски pipeline по расписанию.
	ScheduledRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "conveyor",
		Name:      "scheduled_submissions_total",
		Help:      "Pipeline submissions triggered by the scheduler",
	}, []string{"pipeline_id", "outcome"})
)
