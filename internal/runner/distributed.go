package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Kind элементов цепочки.
const (
	KindPipelineReport = "pipeline.report"
	KindPipelineFail   = "pipeline.fail"
	KindTaskRun        = "task.run"
	KindTaskReport     = "task.report"
)

// Distributed отправляет pipeline исполнителю как последовательную цепочку:
//
//	pipeline.report RUNNING → task.run × N → pipeline.report DONE
//
// У каждого task.run свой обработчик ошибки (task.report), у цепочки —
// pipeline.fail, который отменяет невыполненные задачи.
//
// Обработчики элементов (Handlers) выполняются на стороне исполнителя
// и находят pipeline по id в каталоге, поэтому pipeline должен быть
// зарегистрирован и у отправителя, и у исполнителя.
type Distributed struct {
	cfg       Config
	executor  executor.Executor
	pipelines *pipeline.Registry
}

// NewDistributed создаёт распределённый раннер.
// exec может быть nil, если нужны только Handlers (процесс worker).
func NewDistributed(cfg Config, exec executor.Executor, pipelines *pipeline.Registry) *Distributed {
	return &Distributed{
		cfg:       cfg.withDefaults(),
		executor:  exec,
		pipelines: pipelines,
	}
}

// Name реализует Runner.
func (d *Distributed) Name() string { return NameDistributed }

// Start реализует Runner. Возвращается сразу после отправки цепочки.
func (d *Distributed) Start(ctx context.Context, job *Job) (*Handle, error) {
	if d.executor == nil {
		return nil, errors.New("distributed runner has no executor")
	}
	if _, err := d.pipelines.Get(job.Pipeline.ID()); err != nil {
		return nil, err
	}

	chain := d.BuildChain(job)
	sub, err := d.executor.Submit(ctx, chain)
	if err != nil {
		return nil, fmt.Errorf("submit chain: %w", err)
	}

	telemetry.WithRun(d.cfg.Logger, job.Pipeline.ID(), job.RunID).
		Info("pipeline submitted", "runner", NameDistributed, "chain_id", chain.ID, "items", len(chain.Items))

	return &Handle{
		RunID:      job.RunID,
		Runner:     NameDistributed,
		ChainID:    chain.ID,
		Status:     domain.StatusPending,
		Submission: sub,
	}, nil
}

// BuildChain строит цепочку для run.
func (d *Distributed) BuildChain(job *Job) *executor.Chain {
	base := executor.Args{
		PipelineID: job.Pipeline.ID(),
		RunID:      job.RunID,
		Iteration:  job.Iteration,
	}

	order := job.Pipeline.Order()
	items := make([]executor.Item, 0, len(order)+2)

	running := base
	running.Status, running.Message = domain.StatusRunning, MessageRunning
	items = append(items, executor.NewItem(KindPipelineReport, running))

	for _, t := range order {
		args := base
		args.PipelineTask = t.Name()
		args.Input = job.Input

		onError := base
		onError.PipelineTask = t.Name()
		onError.Status, onError.Message = domain.StatusRuntimeError, MessageTaskError

		items = append(items, executor.NewItem(KindTaskRun, args).
			WithOnError(executor.NewItem(KindTaskReport, onError)))
	}

	done := base
	done.Status, done.Message = domain.StatusDone, MessageDone
	items = append(items, executor.NewItem(KindPipelineReport, done))

	fail := base
	fail.Status, fail.Message = domain.StatusRuntimeError, MessagePipelineCancelled
	onError := executor.NewItem(KindPipelineFail, fail)

	return executor.NewChain(items, &onError)
}

// Handlers возвращает обработчики элементов цепочки.
func (d *Distributed) Handlers() executor.Handlers {
	return executor.Handlers{
		KindPipelineReport: d.handlePipelineReport,
		KindPipelineFail:   d.handlePipelineFail,
		KindTaskRun:        d.handleTaskRun,
		KindTaskReport:     d.handleTaskReport,
	}
}

func (d *Distributed) handlePipelineReport(ctx context.Context, item executor.Item, _ *executor.Failure) error {
	a := item.Args
	d.cfg.reportPipeline(ctx, a.PipelineID, a.RunID, a.Status, a.Message)
	return nil
}

func (d *Distributed) handleTaskRun(ctx context.Context, item executor.Item, _ *executor.Failure) error {
	a := item.Args
	def, err := d.pipelines.Get(a.PipelineID)
	if err != nil {
		return err
	}
	t, ok := def.Task(a.PipelineTask)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrTaskNotInPipeline, a.PipelineID, a.PipelineTask)
	}

	// Шаг может прийти повторно (redelivery после сбоя публикации).
	// Завершённая задача не перезапускается.
	status, err := d.storedStatus(ctx, a)
	if err != nil {
		return err
	}
	switch {
	case status == domain.StatusDone:
		telemetry.WithTask(telemetry.WithRun(d.cfg.Logger, a.PipelineID, a.RunID), t.Name(), t.ID()).
			Info("task already done, skipping repeated step")
		return nil
	case status.IsTerminal():
		return fmt.Errorf("%w: %s (%s)", ErrTaskFailed, a.PipelineTask, status)
	}

	if !t.Start(ctx, a.PipelineID, a.RunID, a.Input, d.cfg.env(a.Iteration)) {
		return fmt.Errorf("%w: %s", ErrTaskFailed, a.PipelineTask)
	}
	return nil
}

// storedStatus возвращает сохранённый статус задачи run или "", если
// записи ещё нет.
func (d *Distributed) storedStatus(ctx context.Context, a executor.Args) (domain.Status, error) {
	results, err := d.cfg.Results.ListTaskResults(ctx, a.PipelineID, a.RunID)
	if err != nil {
		return "", fmt.Errorf("load task results: %w", err)
	}
	for _, r := range results {
		if r.PipelineTask == a.PipelineTask {
			return r.Status, nil
		}
	}
	return "", nil
}

// handleTaskReport фиксирует ошибку элемента task.run, если жизненный
// цикл задачи не успел сделать это сам (задача не найдена и т.п.).
func (d *Distributed) handleTaskReport(ctx context.Context, item executor.Item, failure *executor.Failure) error {
	if failure != nil && errors.Is(failure.Err, ErrTaskFailed) {
		return nil
	}

	a := item.Args
	message := a.Message
	if failure != nil {
		message = fmt.Sprintf("%s: %v", a.Message, failure.Err)
	}

	def, err := d.pipelines.Get(a.PipelineID)
	if err != nil {
		return err
	}
	t, ok := def.Task(a.PipelineTask)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrTaskNotInPipeline, a.PipelineID, a.PipelineTask)
	}

	d.cfg.reportTask(ctx, a.PipelineID, a.RunID, t, a.Status, message)
	return nil
}

// handlePipelineFail отменяет невыполненные задачи и переводит run
// в RUNTIME_ERROR.
func (d *Distributed) handlePipelineFail(ctx context.Context, item executor.Item, failure *executor.Failure) error {
	a := item.Args

	if failure != nil {
		if def, err := d.pipelines.Get(a.PipelineID); err == nil {
			for _, rest := range failure.Remaining {
				if rest.Kind != KindTaskRun {
					continue
				}
				if t, ok := def.Task(rest.Args.PipelineTask); ok {
					d.cfg.reportTask(ctx, a.PipelineID, a.RunID, t, domain.StatusCancelled, MessageCancelled)
				}
			}
		}
	}

	d.cfg.reportPipeline(ctx, a.PipelineID, a.RunID, a.Status, a.Message)
	return nil
}
