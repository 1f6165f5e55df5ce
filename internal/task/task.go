package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/reporter"
	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Сообщения жизненного цикла.
const (
	MessageRunning = "Task is running"
	MessageDone    = "Done"
)

// Config — типизированная конфигурация задачи.
// Реализации встраивают BaseConfig.
type Config interface {
	TaskParents() []string
}

// BaseConfig — общая часть конфигурации: имена родительских задач.
type BaseConfig struct {
	Parents []string `json:"parents,omitempty"`
}

// TaskParents реализует Config.
func (c BaseConfig) TaskParents() []string {
	return c.Parents
}

// Implementation — реализация задачи.
type Implementation interface {
	// NewConfig возвращает указатель на пустую конфигурацию.
	NewConfig() Config

	// NewInput возвращает указатель на пустой input
	// или nil, если задача input не принимает.
	NewInput() any

	// Run выполняет работу задачи.
	Run(ctx context.Context, req *Request) error
}

// Titled — реализация с человекочитаемым названием.
type Titled interface {
	Title() string
}

// Request — всё, что получает Run.
type Request struct {
	PipelineID   string
	RunID        string
	PipelineTask string
	Iteration    string

	// Config — провалидированная конфигурация (тот же тип, что NewConfig).
	Config Config

	// Input — провалидированный input (тот же тип, что NewInput) или nil.
	Input any

	// Values — значения, общие для задач одного run.
	Values store.ValueStore

	Logger *slog.Logger
}

// Env — зависимости жизненного цикла задачи.
type Env struct {
	Results  store.ResultStore
	Values   store.ValueStore
	Reporter reporter.Reporter
	Logger   *slog.Logger

	// Iteration — значение итерации run (пусто, если нет).
	Iteration string
}

// Task — экземпляр задачи в pipeline с провалидированной конфигурацией.
type Task struct {
	name      string
	id        string
	impl      Implementation
	config    Config
	configMap map[string]any
}

// New создаёт задачу и валидирует rawConfig по схеме реализации.
//
// name — имя задачи внутри pipeline, id — идентификатор реализации
// в реестре.
func New(name, id string, impl Implementation, rawConfig map[string]any) (*Task, error) {
	if name == "" {
		return nil, errors.New("task name is required")
	}
	if impl == nil {
		return nil, fmt.Errorf("task %s: implementation is nil", name)
	}

	cfg := impl.NewConfig()
	if cfg == nil {
		cfg = &BaseConfig{}
	}
	if err := decode(rawConfig, cfg); err != nil {
		return nil, &ConfigValidationError{Task: name, TaskID: id, Err: err}
	}

	return &Task{
		name:      name,
		id:        id,
		impl:      impl,
		config:    cfg,
		configMap: toMap(cfg),
	}, nil
}

// Name возвращает имя задачи в pipeline.
func (t *Task) Name() string { return t.name }

// ID возвращает идентификатор реализации.
func (t *Task) ID() string { return t.id }

// Parents возвращает имена родительских задач.
func (t *Task) Parents() []string { return t.config.TaskParents() }

// Config возвращает провалидированную конфигурацию.
func (t *Task) Config() Config { return t.config }

// ConfigMap возвращает конфигурацию в виде map (для хранения и API).
func (t *Task) ConfigMap() map[string]any { return t.configMap }

// Title возвращает название реализации или имя задачи.
func (t *Task) Title() string {
	if titled, ok := t.impl.(Titled); ok {
		return titled.Title()
	}
	return t.name
}

// HasInput сообщает, объявляет ли задача тип input.
func (t *Task) HasInput() bool {
	return t.impl.NewInput() != nil
}

// ValidateInput проверяет input по схеме задачи.
//
// Возвращает nil, nil, если задача не объявляет input и он не передан.
func (t *Task) ValidateInput(raw map[string]any) (any, error) {
	input := t.impl.NewInput()
	if input == nil {
		if len(raw) > 0 {
			return nil, &InputValidationError{Task: t.name, TaskID: t.id, Err: ErrUnexpectedInput}
		}
		return nil, nil
	}

	if err := decode(raw, input); err != nil {
		return nil, &InputValidationError{Task: t.name, TaskID: t.id, Err: err}
	}
	return input, nil
}

// Start проводит задачу через жизненный цикл.
//
// Возвращает true, если задача завершилась DONE. Любая ошибка
// (включая панику в Run) превращается в статус задачи, событие
// репортера и RUNTIME_ERROR у run.
func (t *Task) Start(ctx context.Context, pipelineID, runID string, rawInput map[string]any, env Env) bool {
	env = env.withDefaults()
	logger := telemetry.WithTask(
		telemetry.WithRun(env.Logger, pipelineID, runID),
		t.name, t.id,
	)

	// Статусы пишутся и после отмены ctx, сама работа задачи отменяется
	persist := context.WithoutCancel(ctx)

	input, err := t.ValidateInput(rawInput)
	if err != nil {
		t.fail(persist, pipelineID, runID, domain.StatusValidationError, err, env, logger, time.Time{})
		return false
	}

	startedAt := time.Now()
	env.Reporter.ReportTask(persist, t.event(pipelineID, runID, domain.StatusRunning, MessageRunning))

	_, err = env.Results.SaveTaskResult(persist, &domain.TaskResult{
		PipelineID:   pipelineID,
		PipelineTask: t.name,
		TaskID:       t.id,
		RunID:        runID,
		Status:       domain.StatusRunning,
		Config:       t.configMap,
		Input:        toMap(input),
		StartedAt:    &startedAt,
	})
	if err != nil {
		t.fail(persist, pipelineID, runID, domain.StatusRuntimeError,
			fmt.Errorf("save running result: %w", err), env, logger, startedAt)
		return false
	}

	logger.Debug("task started")

	req := &Request{
		PipelineID:   pipelineID,
		RunID:        runID,
		PipelineTask: t.name,
		Iteration:    env.Iteration,
		Config:       t.config,
		Input:        input,
		Values:       env.Values,
		Logger:       logger,
	}
	if err := t.run(ctx, req); err != nil {
		t.fail(persist, pipelineID, runID, domain.StatusRuntimeError, err, env, logger, startedAt)
		return false
	}

	completedAt := time.Now()
	_, err = env.Results.SaveTaskResult(persist, &domain.TaskResult{
		PipelineID:   pipelineID,
		PipelineTask: t.name,
		TaskID:       t.id,
		RunID:        runID,
		Status:       domain.StatusDone,
		CompletedAt:  &completedAt,
	})
	if err != nil {
		t.fail(persist, pipelineID, runID, domain.StatusRuntimeError,
			fmt.Errorf("save done result: %w", err), env, logger, startedAt)
		return false
	}

	env.Reporter.ReportTask(persist, t.event(pipelineID, runID, domain.StatusDone, MessageDone))
	telemetry.TaskDuration.WithLabelValues(pipelineID, t.name, domain.StatusDone.String()).
		Observe(completedAt.Sub(startedAt).Seconds())

	logger.Info("task completed", "duration", completedAt.Sub(startedAt))
	return true
}

// run вызывает реализацию, превращая панику в ошибку.
func (t *Task) run(ctx context.Context, req *Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return t.impl.Run(ctx, req)
}

// fail фиксирует ошибку: событие, запись TaskResult, статус run.
func (t *Task) fail(ctx context.Context, pipelineID, runID string, status domain.Status, cause error,
	env Env, logger *slog.Logger, startedAt time.Time) {

	message := cause.Error()
	logger.Error("task failed", "status", status, "error", cause)

	env.Reporter.ReportTask(ctx, t.event(pipelineID, runID, status, message))

	_, err := env.Results.SaveTaskResult(ctx, &domain.TaskResult{
		PipelineID:   pipelineID,
		PipelineTask: t.name,
		TaskID:       t.id,
		RunID:        runID,
		Status:       status,
		Config:       t.configMap,
		Message:      message,
	})
	if err != nil {
		logger.Error("failed to save task result", "status", status, "error", err)
	}

	if err := env.Results.UpdateRunStatus(ctx, pipelineID, runID, domain.StatusRuntimeError, message); err != nil {
		logger.Warn("failed to update run status", "error", err)
	}

	if !startedAt.IsZero() {
		telemetry.TaskDuration.WithLabelValues(pipelineID, t.name, status.String()).
			Observe(time.Since(startedAt).Seconds())
	}
}

// event собирает TaskEvent с текущим временем.
func (t *Task) event(pipelineID, runID string, status domain.Status, message string) domain.TaskEvent {
	return domain.TaskEvent{
		PipelineID:   pipelineID,
		PipelineTask: t.name,
		TaskID:       t.id,
		RunID:        runID,
		Status:       status,
		Message:      message,
		Timestamp:    time.Now(),
	}
}

func (e Env) withDefaults() Env {
	if e.Reporter == nil {
		e.Reporter = reporter.Nop{}
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	return e
}
