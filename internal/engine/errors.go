package engine

import (
	"errors"
	"strings"
)

// Ошибки валидации графа задач.
var (
	// ErrEmptyGraph — pipeline не содержит задач.
	ErrEmptyGraph = errors.New("pipeline has no tasks")

	// ErrEmptyTaskName — у задачи нет имени.
	ErrEmptyTaskName = errors.New("task has empty name")

	// ErrDuplicateTask — несколько задач с одинаковым именем.
	ErrDuplicateTask = errors.New("duplicate task name")

	// ErrMissingDependency — родитель не найден среди задач pipeline.
	ErrMissingDependency = errors.New("task depends on unknown task")

	// ErrSelfDependency — задача указывает себя в parents.
	ErrSelfDependency = errors.New("task depends on itself")

	// ErrCyclicDependency — граф зависимостей содержит цикл.
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// ValidationError — ошибка валидации с контекстом задачи.
type ValidationError struct {
	Task    string // имя задачи, где произошла ошибка
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Task != "" {
		return "task " + e.Task + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(task, message string, err error) *ValidationError {
	return &ValidationError{
		Task:    task,
		Message: message,
		Err:     err,
	}
}

// CyclicGraphError — граф не является DAG.
//
// Tasks — задачи, которые не удалось упорядочить: каждая из них
// входит в цикл или зависит от задачи в цикле.
type CyclicGraphError struct {
	Tasks []string
}

// Error реализует интерфейс error.
func (e *CyclicGraphError) Error() string {
	return ErrCyclicDependency.Error() + ": " + strings.Join(e.Tasks, ", ")
}

// Unwrap возвращает ErrCyclicDependency.
func (e *CyclicGraphError) Unwrap() error {
	return ErrCyclicDependency
}
