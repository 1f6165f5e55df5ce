package task

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки задач и реестра.
var (
	// ErrConfigValidation — конфигурация задачи не соответствует схеме.
	ErrConfigValidation = errors.New("config validation failed")

	// ErrInputValidation — input не соответствует схеме задачи.
	ErrInputValidation = errors.New("input validation failed")

	// ErrUnexpectedInput — передан input, но задача не объявляет тип input.
	ErrUnexpectedInput = errors.New("input data was provided when no input type was specified")

	// ErrTaskPanicked — Run завершился паникой.
	ErrTaskPanicked = errors.New("task panicked")

	// ErrTaskNotFound — реализация не зарегистрирована.
	ErrTaskNotFound = errors.New("task type not found")

	// ErrAlreadyRegistered — идентификатор занят другой реализацией.
	ErrAlreadyRegistered = errors.New("task identifier already registered")

	// ErrRegistrySealed — реестр закрыт для регистрации.
	ErrRegistrySealed = errors.New("task registry is sealed")

	// ErrAnonymousType — реализация не имеет имени типа.
	ErrAnonymousType = errors.New("task implementation must be a named type")
)

// FieldError — нарушение схемы в конкретном поле.
type FieldError struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

// SchemaError — список нарушений схемы.
type SchemaError struct {
	Fields []FieldError
}

// Error реализует интерфейс error.
func (e *SchemaError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Problem
	}
	return strings.Join(parts, "; ")
}

// ConfigValidationError — конфигурация задачи отклонена при создании.
type ConfigValidationError struct {
	Task   string // имя задачи в pipeline
	TaskID string // идентификатор реализации
	Err    error
}

// Error реализует интерфейс error.
func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("task %s: %s: %v", e.Task, ErrConfigValidation, e.Err)
}

// Unwrap возвращает ErrConfigValidation и причину.
func (e *ConfigValidationError) Unwrap() []error {
	return []error{ErrConfigValidation, e.Err}
}

// InputValidationError — input задачи отклонён при старте.
type InputValidationError struct {
	Task   string
	TaskID string
	Err    error
}

// Error реализует интерфейс error.
func (e *InputValidationError) Error() string {
	return fmt.Sprintf("task %s: %s: %v", e.Task, ErrInputValidation, e.Err)
}

// Unwrap возвращает ErrInputValidation и причину.
func (e *InputValidationError) Unwrap() []error {
	return []error{ErrInputValidation, e.Err}
}
