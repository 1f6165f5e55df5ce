package domain

// Status — статус pipeline run или отдельной задачи.
//
// Жизненный цикл задачи:
//
//	PENDING → RUNNING → DONE
//	                  ↘ RUNTIME_ERROR | VALIDATION_ERROR
//	        ↘ CANCELLED (соседняя задача упала, эта не стартовала)
//	        ↘ VALIDATION_ERROR (input отклонён до перехода в RUNNING)
//	        ↘ RUNTIME_ERROR (задачу не удалось даже запустить)
//
// Pipeline run проходит PENDING → RUNNING → DONE | RUNTIME_ERROR.
type Status string

const (
	// StatusPending — запись создана, выполнение ещё не началось.
	StatusPending Status = "PENDING"

	// StatusRunning — выполняется.
	StatusRunning Status = "RUNNING"

	// StatusDone — успешно завершено.
	StatusDone Status = "DONE"

	// StatusRuntimeError — ошибка во время выполнения.
	StatusRuntimeError Status = "RUNTIME_ERROR"

	// StatusValidationError — input не прошёл валидацию.
	StatusValidationError Status = "VALIDATION_ERROR"

	// StatusCancelled — задача не запускалась, потому что упала другая.
	StatusCancelled Status = "CANCELLED"
)

// String возвращает строковое представление Status.
func (s Status) String() string {
	return string(s)
}

// IsTerminal возвращает true, если статус финальный.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusRuntimeError, StatusValidationError, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsError возвращает true для статусов ошибки.
func (s Status) IsError() bool {
	return s == StatusRuntimeError || s == StatusValidationError
}

// CanTransition проверяет, допустим ли переход s → to.
//
// Повтор того же статуса допустим (идемпотентные обновления),
// возврат в PENDING — никогда.
func (s Status) CanTransition(to Status) bool {
	if s == to {
		return true
	}
	switch s {
	case StatusPending:
		return to == StatusRunning || to == StatusCancelled ||
			to == StatusValidationError || to == StatusRuntimeError
	case StatusRunning:
		return to == StatusDone || to == StatusRuntimeError || to == StatusValidationError
	default:
		return false
	}
}

// ParseStatus парсит строку в Status.
// Второе значение false, если статус неизвестен.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusDone,
		StatusRuntimeError, StatusValidationError, StatusCancelled:
		return Status(s), true
	default:
		return "", false
	}
}
