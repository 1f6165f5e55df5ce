package api

import (
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/runner"
)

// Pipeline DTOs

// PipelineTaskResponse — задача pipeline.
type PipelineTaskResponse struct {
	Name     string         `json:"name"`
	TaskID   string         `json:"task_id"`
	Title    string         `json:"title"`
	Parents  []string       `json:"parents"`
	HasInput bool           `json:"has_input"`
	Config   map[string]any `json:"config,omitempty"`
}

// PipelineResponse — ответ с pipeline.
type PipelineResponse struct {
	ID         string                 `json:"id"`
	Title      string                 `json:"title,omitempty"`
	Tasks      []PipelineTaskResponse `json:"tasks"`
	Order      []string               `json:"order"`
	Iterations []string               `json:"iterations,omitempty"`
}

// PipelineFromDefinition конвертирует pipeline.Definition в PipelineResponse.
func PipelineFromDefinition(def *pipeline.Definition) PipelineResponse {
	resp := PipelineResponse{
		ID:         def.ID(),
		Title:      def.Title(),
		Tasks:      make([]PipelineTaskResponse, 0, len(def.Tasks())),
		Order:      make([]string, 0, len(def.Tasks())),
		Iterations: def.Iterations(),
	}
	for _, t := range def.Tasks() {
		parents := t.Parents()
		if parents == nil {
			parents = []string{}
		}
		resp.Tasks = append(resp.Tasks, PipelineTaskResponse{
			Name:     t.Name(),
			TaskID:   t.ID(),
			Title:    t.Title(),
			Parents:  parents,
			HasInput: t.HasInput(),
			Config:   t.ConfigMap(),
		})
	}
	for _, t := range def.Order() {
		resp.Order = append(resp.Order, t.Name())
	}
	return resp
}

// Run DTOs

// CreateRunRequest — запрос на запуск pipeline.
type CreateRunRequest struct {
	// Runner — стратегия: eager или distributed (по умолчанию — из конфигурации).
	Runner string         `json:"runner,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
}

// SubmittedRunResponse — run, созданный запуском.
type SubmittedRunResponse struct {
	RunID     string        `json:"run_id"`
	Iteration string        `json:"iteration,omitempty"`
	ChainID   string        `json:"chain_id,omitempty"`
	Status    domain.Status `json:"status"`
}

// SubmissionResponse — ответ на запуск pipeline.
type SubmissionResponse struct {
	PipelineID string                 `json:"pipeline_id"`
	Runner     string                 `json:"runner"`
	Runs       []SubmittedRunResponse `json:"runs"`
}

// SubmissionFromRunner конвертирует runner.Submission в SubmissionResponse.
func SubmissionFromRunner(sub *runner.Submission) SubmissionResponse {
	resp := SubmissionResponse{
		PipelineID: sub.PipelineID,
		Runner:     sub.Runner,
		Runs:       make([]SubmittedRunResponse, len(sub.Runs)),
	}
	for i, r := range sub.Runs {
		resp.Runs[i] = SubmittedRunResponse{
			RunID:     r.RunID,
			Iteration: r.Iteration,
			ChainID:   r.ChainID,
			Status:    r.Status,
		}
	}
	return resp
}

// RunResponse — ответ с run.
type RunResponse struct {
	PipelineID string         `json:"pipeline_id"`
	RunID      string         `json:"run_id"`
	Status     domain.Status  `json:"status"`
	Message    string         `json:"message,omitempty"`
	Runner     string         `json:"runner"`
	Iteration  string         `json:"iteration,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// RunFromDomain конвертирует domain.PipelineRun в RunResponse.
func RunFromDomain(r domain.PipelineRun) RunResponse {
	return RunResponse{
		PipelineID: r.PipelineID,
		RunID:      r.RunID,
		Status:     r.Status,
		Message:    r.Message,
		Runner:     r.Runner,
		Iteration:  r.Iteration,
		Input:      r.Input,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMs: r.Duration().Milliseconds(),
		CreatedAt:  r.CreatedAt,
	}
}

// Task DTOs

// TaskResultResponse — ответ с результатом задачи.
type TaskResultResponse struct {
	PipelineTask string         `json:"pipeline_task"`
	TaskID       string         `json:"task_id"`
	Status       domain.Status  `json:"status"`
	Message      string         `json:"message,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	DurationMs   int64          `json:"duration_ms,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TaskResultFromDomain конвертирует domain.TaskResult в TaskResultResponse.
func TaskResultFromDomain(r domain.TaskResult) TaskResultResponse {
	return TaskResultResponse{
		PipelineTask: r.PipelineTask,
		TaskID:       r.TaskID,
		Status:       r.Status,
		Message:      r.Message,
		Config:       r.Config,
		Input:        r.Input,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		DurationMs:   r.Duration().Milliseconds(),
		UpdatedAt:    r.UpdatedAt,
	}
}
