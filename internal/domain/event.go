package domain

import "time"

// PipelineEvent — событие об изменении статуса pipeline run.
type PipelineEvent struct {
	PipelineID string    `json:"pipeline_id"`
	RunID      string    `json:"run_id"`
	Status     Status    `json:"status"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// TaskEvent — событие об изменении статуса задачи.
type TaskEvent struct {
	PipelineID   string    `json:"pipeline_id"`
	PipelineTask string    `json:"pipeline_task"`
	TaskID       string    `json:"task_id"`
	RunID        string    `json:"run_id"`
	Status       Status    `json:"status"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}
