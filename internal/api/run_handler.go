package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// ListRuns возвращает список runs с фильтрацией.
// GET /api/v1/runs?pipeline_id=...&status=...&limit=...&offset=...
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RunFilter{PipelineID: q.Get("pipeline_id")}

	if raw := q.Get("status"); raw != "" {
		status, ok := domain.ParseStatus(strings.ToUpper(raw))
		if !ok {
			BadRequest(w, "invalid status")
			return
		}
		filter.Status = status
	}

	limit, err := parseInt(q.Get("limit"), defaultLimit)
	if err != nil || limit <= 0 {
		BadRequest(w, "invalid limit")
		return
	}
	filter.Limit = min(limit, maxLimit)

	filter.Offset, err = parseInt(q.Get("offset"), 0)
	if err != nil || filter.Offset < 0 {
		BadRequest(w, "invalid offset")
		return
	}

	runs, err := h.results.ListRuns(r.Context(), filter)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	result := make([]RunResponse, len(runs))
	for i, run := range runs {
		result[i] = RunFromDomain(run)
	}

	List(w, result, len(result))
}

// CreateRun запускает pipeline.
// POST /api/v1/pipelines/{id}/runs
//
// Для eager ответ возвращается после завершения run, для distributed —
// сразу после отправки цепочки.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		BadRequest(w, "invalid request body")
		return
	}

	def, err := h.pipelines.Get(r.PathValue("id"))
	if HandleStoreError(w, h.logger, err, "pipeline not found") {
		return
	}

	strategy := strings.ToLower(req.Runner)
	if strategy == "" {
		strategy = h.defaultRunner
	}

	sub, err := h.submitter.Submit(r.Context(), def, strategy, req.Input)
	if HandleSubmitError(w, h.logger, err) {
		return
	}

	Created(w, SubmissionFromRunner(sub))
}

// GetRun возвращает run.
// GET /api/v1/pipelines/{id}/runs/{run_id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.results.GetRun(r.Context(), r.PathValue("id"), r.PathValue("run_id"))
	if HandleStoreError(w, h.logger, err, "run not found") {
		return
	}

	Success(w, RunFromDomain(*run))
}

// ListRunTasks возвращает результаты задач run.
// GET /api/v1/pipelines/{id}/runs/{run_id}/tasks
func (h *Handler) ListRunTasks(w http.ResponseWriter, r *http.Request) {
	pipelineID, runID := r.PathValue("id"), r.PathValue("run_id")

	// Проверяем, что run существует
	_, err := h.results.GetRun(r.Context(), pipelineID, runID)
	if HandleStoreError(w, h.logger, err, "run not found") {
		return
	}

	results, err := h.results.ListTaskResults(r.Context(), pipelineID, runID)
	if HandleStoreError(w, h.logger, err, "") {
		return
	}

	resp := make([]TaskResultResponse, len(results))
	for i, res := range results {
		resp[i] = TaskResultFromDomain(res)
	}

	List(w, resp, len(resp))
}

// RunEvents транслирует события run по WebSocket.
// GET /api/v1/pipelines/{id}/runs/{run_id}/events
func (h *Handler) RunEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		NotFound(w, "event streaming is disabled")
		return
	}

	pipelineID, runID := r.PathValue("id"), r.PathValue("run_id")
	_, err := h.results.GetRun(r.Context(), pipelineID, runID)
	if HandleStoreError(w, h.logger, err, "run not found") {
		return
	}

	h.events.Serve(w, r, pipelineID, runID)
}

// parseInt парсит query-параметр с дефолтным значением.
func parseInt(s string, defaultVal int) (int, error) {
	if s == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(s)
}
