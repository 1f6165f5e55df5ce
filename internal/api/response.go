package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/store"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeInvalidState    ErrorCode = "INVALID_STATE"
	ErrCodeInvalidPipeline ErrorCode = "INVALID_PIPELINE"
	ErrCodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — ответ с ошибкой: {"error":{"code","message"}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DataResponse — ответ с одним объектом.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — ответ со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total,omitempty"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success — 200 с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created — 201: run запущен.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, DataResponse{Data: data})
}

// List — 200 со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest — 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound — 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// InternalError логирует err и отправляет 500 без деталей.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// HandleStoreError преобразует ошибку хранилища или каталога в HTTP ответ.
// Возвращает false, если ошибки нет.
func HandleStoreError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, store.ErrNotFound) || errors.Is(err, pipeline.ErrPipelineNotFound) {
		NotFound(w, notFoundMsg)
		return true
	}

	if errors.Is(err, store.ErrInvalidTransition) {
		Error(w, http.StatusUnprocessableEntity, ErrCodeInvalidState, err.Error())
		return true
	}

	InternalError(w, logger, err)
	return true
}

// HandleSubmitError преобразует ошибку запуска pipeline в HTTP ответ.
//
// Ошибки графа означают, что pipeline не запущен ни одной задачей.
func HandleSubmitError(w http.ResponseWriter, logger *slog.Logger, err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, runner.ErrUnknownRunner):
		BadRequest(w, err.Error())
	case isGraphError(err):
		Error(w, http.StatusUnprocessableEntity, ErrCodeInvalidPipeline, err.Error())
	default:
		InternalError(w, logger, err)
	}
	return true
}

func isGraphError(err error) bool {
	for _, target := range []error{
		engine.ErrEmptyGraph,
		engine.ErrEmptyTaskName,
		engine.ErrDuplicateTask,
		engine.ErrMissingDependency,
		engine.ErrSelfDependency,
		engine.ErrCyclicDependency,
		runner.ErrUnschedulable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
