package domain

import "time"

// PipelineRun — одна попытка выполнения pipeline.
//
// Идентифицируется парой (PipelineID, RunID). Статус агрегирует
// статусы всех TaskResult с тем же run_id: DONE только когда все
// задачи DONE, RUNTIME_ERROR как только хотя бы одна задача упала.
type PipelineRun struct {
	// PipelineID — идентификатор pipeline.
	PipelineID string `json:"pipeline_id"`

	// RunID — идентификатор запуска.
	RunID string `json:"run_id"`

	// Status — текущий статус.
	Status Status `json:"status"`

	// Message — сообщение последнего перехода.
	Message string `json:"message,omitempty"`

	// Runner — стратегия выполнения: "eager" или "distributed".
	Runner string `json:"runner"`

	// Iteration — значение итерации (пусто, если pipeline не итерируется).
	Iteration string `json:"iteration,omitempty"`

	// Input — входные данные, переданные при запуске.
	Input map[string]any `json:"input,omitempty"`

	// StartedAt — время перехода в RUNNING.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в финальный статус.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания записи.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *PipelineRun) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run в финальном статусе.
func (r *PipelineRun) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Apply переводит run в новый статус и проставляет временные метки.
//
// Ошибка задачи (VALIDATION_ERROR) на уровне run всегда отображается
// в RUNTIME_ERROR. Из финального статуса run не выходит; возвращает
// false, если переход не применён.
func (r *PipelineRun) Apply(status Status, message string, at time.Time) bool {
	if status.IsError() {
		status = StatusRuntimeError
	}
	if r.Status.IsTerminal() && r.Status != status {
		return false
	}
	if r.Status == StatusRunning && status == StatusPending {
		return false
	}

	r.Status = status
	if message != "" {
		r.Message = message
	}
	switch {
	case status == StatusRunning && r.StartedAt == nil:
		r.StartedAt = &at
	case status.IsTerminal() && r.FinishedAt == nil:
		r.FinishedAt = &at
	}
	return true
}
