package store

import (
	"context"
	"errors"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Общие ошибки хранилища.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidTransition — недопустимый переход статуса.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// RunFilter — фильтр для списка runs.
type RunFilter struct {
	PipelineID string
	Status     domain.Status
	Limit      int
	Offset     int
}

// ResultStore — хранилище TaskResult и PipelineRun.
//
// SaveTaskResult делает upsert по ключу (pipeline_id, pipeline_task, run_id).
// Когда сохраняется DONE и в run не осталось незавершённых задач,
// хранилище само переводит PipelineRun в DONE.
type ResultStore interface {
	// CreateRun создаёт запись run в статусе PENDING.
	CreateRun(ctx context.Context, run *domain.PipelineRun) error

	// GetRun возвращает run по ключу.
	GetRun(ctx context.Context, pipelineID, runID string) (*domain.PipelineRun, error)

	// ListRuns возвращает runs по фильтру, новые первыми.
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.PipelineRun, error)

	// UpdateRunStatus переводит run в новый статус.
	UpdateRunStatus(ctx context.Context, pipelineID, runID string, status domain.Status, message string) error

	// SaveTaskResult сохраняет результат задачи.
	SaveTaskResult(ctx context.Context, result *domain.TaskResult) (*domain.TaskResult, error)

	// ListTaskResults возвращает результаты задач run.
	ListTaskResults(ctx context.Context, pipelineID, runID string) ([]domain.TaskResult, error)

	// CountIncomplete возвращает количество задач run не в статусе DONE.
	CountIncomplete(ctx context.Context, pipelineID, runID string) (int, error)
}

// LogStore — журнал событий (PipelineLog / TaskLog).
type LogStore interface {
	AppendPipelineLog(ctx context.Context, event domain.PipelineEvent) error
	AppendTaskLog(ctx context.Context, event domain.TaskEvent) error
}

// ValueStore — значения, которые задачи одного run передают друг другу.
type ValueStore interface {
	PutValue(ctx context.Context, pipelineID, runID, key string, value any) error
	GetValue(ctx context.Context, pipelineID, runID, key string) (any, error)
}

// Store объединяет все хранилища.
type Store interface {
	ResultStore
	LogStore
	ValueStore
}
