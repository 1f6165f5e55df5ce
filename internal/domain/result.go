package domain

import "time"

// TaskResult — запись о выполнении одной задачи в рамках run.
//
// Ключ записи — (PipelineID, PipelineTask, RunID). TaskID хранит
// идентификатор реализации из реестра задач: одна и та же реализация
// может встречаться в pipeline несколько раз под разными именами.
type TaskResult struct {
	// PipelineID — pipeline, которому принадлежит задача.
	PipelineID string `json:"pipeline_id"`

	// PipelineTask — имя задачи внутри pipeline (на него ссылаются parents).
	PipelineTask string `json:"pipeline_task"`

	// TaskID — идентификатор реализации в реестре.
	TaskID string `json:"task_id"`

	// RunID — run, в рамках которого выполнялась задача.
	RunID string `json:"run_id"`

	// Status — текущий статус.
	Status Status `json:"status"`

	// Config — провалидированная конфигурация задачи.
	Config map[string]any `json:"config,omitempty"`

	// Input — провалидированный input (nil, если задача его не объявляет).
	Input map[string]any `json:"input,omitempty"`

	// Message — последнее сообщение (текст ошибки, причина отмены).
	Message string `json:"message,omitempty"`

	// StartedAt — момент перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt — момент успешного завершения.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// UpdatedAt — время последнего изменения записи.
	UpdatedAt time.Time `json:"updated_at"`
}

// Duration возвращает продолжительность выполнения.
func (r *TaskResult) Duration() time.Duration {
	if r.StartedAt == nil || r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(*r.StartedAt)
}

// Merge переносит в r заполненные поля update.
//
// Статус меняется только при допустимом переходе; возвращает false,
// если переход запрещён (запись при этом не меняется).
func (r *TaskResult) Merge(update *TaskResult) bool {
	if r.Status != "" && !r.Status.CanTransition(update.Status) {
		return false
	}
	r.Status = update.Status
	if update.TaskID != "" {
		r.TaskID = update.TaskID
	}
	if update.Config != nil {
		r.Config = update.Config
	}
	if update.Input != nil {
		r.Input = update.Input
	}
	if update.Message != "" {
		r.Message = update.Message
	}
	if update.StartedAt != nil {
		r.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		r.CompletedAt = update.CompletedAt
	}
	r.UpdatedAt = update.UpdatedAt
	return true
}
