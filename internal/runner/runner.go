package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/reporter"
	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/task"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Имена стратегий.
const (
	NameEager       = "eager"
	NameDistributed = "distributed"
)

// Сообщения статусов pipeline и отменённых задач.
const (
	MessageRunning           = "Running"
	MessageDone              = "Done"
	MessageError             = "Error"
	MessageTaskError         = "Task Error"
	MessageCancelled         = "There was an error running a different task"
	MessagePipelineCancelled = "Pipeline Error - remaining tasks cancelled"
)

// Ошибки раннеров.
var (
	// ErrTaskFailed — задача завершилась не DONE (статус уже сохранён).
	ErrTaskFailed = errors.New("task failed")

	// ErrUnknownRunner — стратегия не зарегистрирована.
	ErrUnknownRunner = errors.New("unknown runner")

	// ErrUnschedulable — остались задачи, которые нельзя запустить.
	ErrUnschedulable = errors.New("tasks cannot be scheduled")

	// ErrTaskNotInPipeline — задача из цепочки не найдена в pipeline.
	ErrTaskNotInPipeline = errors.New("task not found in pipeline")
)

// Job — запуск pipeline в рамках одного run.
type Job struct {
	Pipeline  *pipeline.Definition
	RunID     string
	Input     map[string]any
	Iteration string
}

// Handle — дескриптор запущенного run.
type Handle struct {
	RunID  string
	Runner string

	// ChainID — id цепочки (только Distributed).
	ChainID string

	// Status — статус на момент возврата Start: финальный для Eager,
	// PENDING для Distributed.
	Status domain.Status

	// Submission — дескриптор цепочки (только Distributed).
	Submission *executor.Submission
}

// Runner — стратегия выполнения pipeline.
type Runner interface {
	Name() string
	Start(ctx context.Context, job *Job) (*Handle, error)
}

// Config — общие зависимости раннеров.
type Config struct {
	Results  store.ResultStore
	Values   store.ValueStore
	Reporter reporter.Reporter
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Reporter == nil {
		c.Reporter = reporter.Nop{}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// env собирает окружение жизненного цикла задачи.
func (c Config) env(iteration string) task.Env {
	return task.Env{
		Results:   c.Results,
		Values:    c.Values,
		Reporter:  c.Reporter,
		Logger:    c.Logger,
		Iteration: iteration,
	}
}

// reportPipeline отправляет событие pipeline и сохраняет статус run.
//
// Запись не зависит от отмены ctx: run не должен остаться RUNNING,
// если вызывающий (например, HTTP-клиент) ушёл.
func (c Config) reportPipeline(ctx context.Context, pipelineID, runID string, status domain.Status, message string) {
	ctx = context.WithoutCancel(ctx)
	c.Reporter.ReportPipeline(ctx, domain.PipelineEvent{
		PipelineID: pipelineID,
		RunID:      runID,
		Status:     status,
		Message:    message,
		Timestamp:  time.Now(),
	})

	if err := c.Results.UpdateRunStatus(ctx, pipelineID, runID, status, message); err != nil {
		telemetry.WithRun(c.Logger, pipelineID, runID).
			Warn("failed to update run status", "status", status, "error", err)
	}
}

// reportTask отправляет событие задачи и сохраняет её статус.
func (c Config) reportTask(ctx context.Context, pipelineID, runID string, t *task.Task, status domain.Status, message string) {
	ctx = context.WithoutCancel(ctx)
	c.Reporter.ReportTask(ctx, domain.TaskEvent{
		PipelineID:   pipelineID,
		PipelineTask: t.Name(),
		TaskID:       t.ID(),
		RunID:        runID,
		Status:       status,
		Message:      message,
		Timestamp:    time.Now(),
	})

	_, err := c.Results.SaveTaskResult(ctx, &domain.TaskResult{
		PipelineID:   pipelineID,
		PipelineTask: t.Name(),
		TaskID:       t.ID(),
		RunID:        runID,
		Status:       status,
		Message:      message,
	})
	if err != nil {
		logger := telemetry.WithRun(c.Logger, pipelineID, runID)
		telemetry.WithTask(logger, t.Name(), t.ID()).
			Warn("failed to save task status", "status", status, "error", err)
	}
}
