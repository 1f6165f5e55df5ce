package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/store"
)

// SubmittedRun — один run, созданный Submit.
type SubmittedRun struct {
	RunID     string        `json:"run_id"`
	Iteration string        `json:"iteration,omitempty"`
	ChainID   string        `json:"chain_id,omitempty"`
	Status    domain.Status `json:"status"`

	Handle *Handle `json:"-"`
}

// Submission — результат Submit.
type Submission struct {
	PipelineID string         `json:"pipeline_id"`
	Runner     string         `json:"runner"`
	Runs       []SubmittedRun `json:"runs"`
}

// RunID возвращает run_id первого (для pipeline без итераций —
// единственного) run.
func (s *Submission) RunID() string {
	if len(s.Runs) == 0 {
		return ""
	}
	return s.Runs[0].RunID
}

// Submitter создаёт runs и запускает их выбранной стратегией.
type Submitter struct {
	results store.ResultStore
	runners map[string]Runner
	logger  *slog.Logger
	newID   func() string
}

// NewSubmitter создаёт Submitter с набором стратегий.
func NewSubmitter(results store.ResultStore, logger *slog.Logger, runners ...Runner) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Submitter{
		results: results,
		runners: make(map[string]Runner, len(runners)),
		logger:  logger,
		newID:   func() string { return uuid.New().String() },
	}
	for _, r := range runners {
		s.runners[r.Name()] = r
	}
	return s
}

// Runners возвращает имена доступных стратегий.
func (s *Submitter) Runners() []string {
	names := make([]string, 0, len(s.runners))
	for name := range s.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Submit создаёт run (по одному на итерацию) с PENDING-записями всех
// задач и запускает стратегию strategy.
//
// Ошибка означает, что pipeline не запущен; runs, уже созданные для
// предыдущих итераций, остаются в Submission.
func (s *Submitter) Submit(ctx context.Context, def *pipeline.Definition, strategy string, input map[string]any) (*Submission, error) {
	r, ok := s.runners[strategy]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRunner, strategy)
	}

	iterations := def.Iterations()
	if len(iterations) == 0 {
		iterations = []string{""}
	}

	sub := &Submission{PipelineID: def.ID(), Runner: r.Name()}
	for _, iteration := range iterations {
		run, err := s.prepare(ctx, def, r.Name(), iteration, input)
		if err != nil {
			return sub, err
		}

		handle, err := r.Start(ctx, &Job{
			Pipeline:  def,
			RunID:     run.RunID,
			Input:     input,
			Iteration: iteration,
		})
		if err != nil {
			s.abort(ctx, def, run, err)
			return sub, fmt.Errorf("start run %s: %w", run.RunID, err)
		}

		sub.Runs = append(sub.Runs, SubmittedRun{
			RunID:     run.RunID,
			Iteration: iteration,
			ChainID:   handle.ChainID,
			Status:    handle.Status,
			Handle:    handle,
		})
	}
	return sub, nil
}

// prepare создаёт PipelineRun и PENDING TaskResult для каждой задачи,
// чтобы run не мог стать DONE, пока не выполнены все задачи.
func (s *Submitter) prepare(ctx context.Context, def *pipeline.Definition, runnerName, iteration string, input map[string]any) (*domain.PipelineRun, error) {
	run := &domain.PipelineRun{
		PipelineID: def.ID(),
		RunID:      s.newID(),
		Status:     domain.StatusPending,
		Runner:     runnerName,
		Iteration:  iteration,
		Input:      input,
	}
	if err := s.results.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	for _, t := range def.Order() {
		_, err := s.results.SaveTaskResult(ctx, &domain.TaskResult{
			PipelineID:   def.ID(),
			PipelineTask: t.Name(),
			TaskID:       t.ID(),
			RunID:        run.RunID,
			Status:       domain.StatusPending,
			Config:       t.ConfigMap(),
		})
		if err != nil {
			err = fmt.Errorf("create task result %s: %w", t.Name(), err)
			s.abort(ctx, def, run, err)
			return nil, err
		}
	}

	s.logger.Debug("run created",
		"pipeline_id", def.ID(),
		"run_id", run.RunID,
		"runner", runnerName,
		"iteration", iteration,
	)
	return run, nil
}

// abort помечает run, который не удалось запустить: задачи — CANCELLED,
// run — RUNTIME_ERROR.
func (s *Submitter) abort(ctx context.Context, def *pipeline.Definition, run *domain.PipelineRun, cause error) {
	ctx = context.WithoutCancel(ctx)
	for _, t := range def.Order() {
		_, err := s.results.SaveTaskResult(ctx, &domain.TaskResult{
			PipelineID:   def.ID(),
			PipelineTask: t.Name(),
			TaskID:       t.ID(),
			RunID:        run.RunID,
			Status:       domain.StatusCancelled,
			Message:      cause.Error(),
		})
		if err != nil {
			s.logger.Debug("task not cancelled", "run_id", run.RunID, "pipeline_task", t.Name(), "error", err)
		}
	}

	err := s.results.UpdateRunStatus(ctx, run.PipelineID, run.RunID, domain.StatusRuntimeError, cause.Error())
	if err != nil {
		s.logger.Warn("failed to mark run as failed", "run_id", run.RunID, "error", err)
	}
}
