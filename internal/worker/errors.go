package worker

import "errors"

// Ошибки воркера.
var (
	// ErrWorkerStopped — воркер остановлен.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrInvalidStep — сообщение не содержит корректного шага цепочки.
	ErrInvalidStep = errors.New("invalid chain step")

	// ErrNoPublisher — не задан publisher следующих шагов.
	ErrNoPublisher = errors.New("step publisher is not configured")
)
