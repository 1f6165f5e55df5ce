package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		RequestID(h.logger),
		Logging(h.logger),
		Recovery(h.logger),
	)

	// Pipelines
	mux.Handle("GET /api/v1/pipelines", chain(http.HandlerFunc(h.ListPipelines)))
	mux.Handle("GET /api/v1/pipelines/{id}", chain(http.HandlerFunc(h.GetPipeline)))

	// Runs
	mux.Handle("GET /api/v1/runs", chain(http.HandlerFunc(h.ListRuns)))
	mux.Handle("POST /api/v1/pipelines/{id}/runs", chain(http.HandlerFunc(h.CreateRun)))
	mux.Handle("GET /api/v1/pipelines/{id}/runs/{run_id}", chain(http.HandlerFunc(h.GetRun)))
	mux.Handle("GET /api/v1/pipelines/{id}/runs/{run_id}/tasks", chain(http.HandlerFunc(h.ListRunTasks)))
	mux.Handle("GET /api/v1/pipelines/{id}/runs/{run_id}/events", chain(http.HandlerFunc(h.RunEvents)))
}
