package reporter

import (
	"context"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Reporter — приёмник событий о статусах.
type Reporter interface {
	// ReportPipeline сообщает о переходе pipeline run.
	ReportPipeline(ctx context.Context, event domain.PipelineEvent)

	// ReportTask сообщает о переходе задачи.
	ReportTask(ctx context.Context, event domain.TaskEvent)
}

// Multi рассылает события всем приёмникам по порядку.
type Multi []Reporter

// ReportPipeline реализует Reporter.
func (m Multi) ReportPipeline(ctx context.Context, event domain.PipelineEvent) {
	for _, r := range m {
		if r != nil {
			r.ReportPipeline(ctx, event)
		}
	}
}

// ReportTask реализует Reporter.
func (m Multi) ReportTask(ctx context.Context, event domain.TaskEvent) {
	for _, r := range m {
		if r != nil {
			r.ReportTask(ctx, event)
		}
	}
}

// Nop игнорирует все события.
type Nop struct{}

func (Nop) ReportPipeline(context.Context, domain.PipelineEvent) {}
func (Nop) ReportTask(context.Context, domain.TaskEvent)         {}

// Log пишет события в slog.
type Log struct {
	Logger *slog.Logger
}

// NewLog создаёт Log-репортер. nil означает slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{Logger: logger}
}

// ReportPipeline реализует Reporter.
func (l *Log) ReportPipeline(ctx context.Context, event domain.PipelineEvent) {
	logger := telemetry.WithRun(l.Logger, event.PipelineID, event.RunID)
	logger.Log(ctx, levelFor(event.Status), "pipeline "+event.Status.String(),
		"message", event.Message,
	)
}

// ReportTask реализует Reporter.
func (l *Log) ReportTask(ctx context.Context, event domain.TaskEvent) {
	logger := telemetry.WithRun(l.Logger, event.PipelineID, event.RunID)
	logger = telemetry.WithTask(logger, event.PipelineTask, event.TaskID)
	logger.Log(ctx, levelFor(event.Status), "task "+event.Status.String(),
		"message", event.Message,
	)
}

func levelFor(status domain.Status) slog.Level {
	switch {
	case status.IsError():
		return slog.LevelError
	case status == domain.StatusCancelled:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Store сохраняет события в журнал (PipelineLog / TaskLog).
type Store struct {
	Logs   store.LogStore
	Logger *slog.Logger
}

// NewStore создаёт репортер поверх журнала.
func NewStore(logs store.LogStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Logs: logs, Logger: logger}
}

// ReportPipeline реализует Reporter.
func (s *Store) ReportPipeline(ctx context.Context, event domain.PipelineEvent) {
	if err := s.Logs.AppendPipelineLog(ctx, event); err != nil {
		s.Logger.Error("failed to append pipeline log",
			"pipeline_id", event.PipelineID,
			"run_id", event.RunID,
			"error", err,
		)
	}
}

// ReportTask реализует Reporter.
func (s *Store) ReportTask(ctx context.Context, event domain.TaskEvent) {
	if err := s.Logs.AppendTaskLog(ctx, event); err != nil {
		s.Logger.Error("failed to append task log",
			"pipeline_id", event.PipelineID,
			"pipeline_task", event.PipelineTask,
			"run_id", event.RunID,
			"error", err,
		)
	}
}

// Metrics считает переходы статусов в Prometheus.
type Metrics struct{}

// ReportPipeline реализует Reporter.
func (Metrics) ReportPipeline(_ context.Context, event domain.PipelineEvent) {
	telemetry.PipelineTransitions.WithLabelValues(event.PipelineID, event.Status.String()).Inc()

	switch {
	case event.Status == domain.StatusRunning:
		telemetry.ActiveRuns.WithLabelValues(event.PipelineID).Inc()
	case event.Status.IsTerminal():
		telemetry.ActiveRuns.WithLabelValues(event.PipelineID).Dec()
	}
}

// ReportTask реализует Reporter.
func (Metrics) ReportTask(_ context.Context, event domain.TaskEvent) {
	telemetry.TaskTransitions.WithLabelValues(event.PipelineID, event.PipelineTask, event.Status.String()).Inc()
}
