package api

import (
	"net/http"
)

// ListPipelines возвращает каталог pipeline.
// GET /api/v1/pipelines
func (h *Handler) ListPipelines(w http.ResponseWriter, _ *http.Request) {
	defs := h.pipelines.List()

	result := make([]PipelineResponse, len(defs))
	for i, def := range defs {
		result[i] = PipelineFromDefinition(def)
	}

	List(w, result, len(result))
}

// GetPipeline возвращает pipeline по ID.
// GET /api/v1/pipelines/{id}
func (h *Handler) GetPipeline(w http.ResponseWriter, r *http.Request) {
	def, err := h.pipelines.Get(r.PathValue("id"))
	if HandleStoreError(w, h.logger, err, "pipeline not found") {
		return
	}

	Success(w, PipelineFromDefinition(def))
}
