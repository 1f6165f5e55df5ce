package runner

import (
	"context"
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/task"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Eager выполняет задачи по одной в вызывающей горутине.
//
// Start блокирует до завершения pipeline.
type Eager struct {
	cfg Config
}

// NewEager создаёт синхронный раннер.
func NewEager(cfg Config) *Eager {
	return &Eager{cfg: cfg.withDefaults()}
}

// Name реализует Runner.
func (e *Eager) Name() string { return NameEager }

// Start реализует Runner.
//
// На каждом шаге запускается первая (в порядке объявления) задача,
// все родители которой уже выполнены. Если задача упала, все ещё не
// запущенные задачи переводятся в CANCELLED, а run — в RUNTIME_ERROR.
func (e *Eager) Start(ctx context.Context, job *Job) (*Handle, error) {
	def := job.Pipeline
	logger := telemetry.WithRun(e.cfg.Logger, def.ID(), job.RunID)
	handle := &Handle{RunID: job.RunID, Runner: NameEager}

	e.cfg.reportPipeline(ctx, def.ID(), job.RunID, domain.StatusRunning, MessageRunning)
	logger.Info("pipeline started", "runner", NameEager, "iteration", job.Iteration)

	tasks := def.Tasks()
	ran := make(map[string]bool, len(tasks))
	env := e.cfg.env(job.Iteration)

	for len(ran) < len(tasks) {
		next := nextRunnable(tasks, ran)
		if next == nil {
			// Граф проверяется при сборке pipeline; сюда попадаем
			// только при рассогласовании определения.
			e.cancelRemaining(ctx, job, ran, nil)
			e.cfg.reportPipeline(ctx, def.ID(), job.RunID, domain.StatusRuntimeError, MessageError)
			handle.Status = domain.StatusRuntimeError
			return handle, fmt.Errorf("pipeline %s: %w", def.ID(), ErrUnschedulable)
		}

		if !next.Start(ctx, def.ID(), job.RunID, job.Input, env) {
			e.cancelRemaining(ctx, job, ran, next)
			e.cfg.reportPipeline(ctx, def.ID(), job.RunID, domain.StatusRuntimeError, MessageError)
			logger.Warn("pipeline failed", "failed_task", next.Name())
			handle.Status = domain.StatusRuntimeError
			return handle, nil
		}
		ran[next.Name()] = true
	}

	e.cfg.reportPipeline(ctx, def.ID(), job.RunID, domain.StatusDone, MessageDone)
	logger.Info("pipeline completed")
	handle.Status = domain.StatusDone
	return handle, nil
}

// nextRunnable возвращает первую невыполненную задачу с выполненными родителями.
func nextRunnable(tasks []*task.Task, ran map[string]bool) *task.Task {
	for _, t := range tasks {
		if ran[t.Name()] {
			continue
		}
		ready := true
		for _, parent := range t.Parents() {
			if !ran[parent] {
				ready = false
				break
			}
		}
		if ready {
			return t
		}
	}
	return nil
}

// cancelRemaining отменяет незапущенные задачи в топологическом порядке.
func (e *Eager) cancelRemaining(ctx context.Context, job *Job, ran map[string]bool, failed *task.Task) {
	for _, t := range job.Pipeline.Order() {
		if ran[t.Name()] || t == failed {
			continue
		}
		e.cfg.reportTask(ctx, job.Pipeline.ID(), job.RunID, t, domain.StatusCancelled, MessageCancelled)
	}
}
