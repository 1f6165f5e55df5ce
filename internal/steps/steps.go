package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Conveyor/internal/task"
)

// Ошибки встроенных задач.
var (
	// ErrStepCancelled — выполнение прервано отменой context.
	ErrStepCancelled = errors.New("step execution cancelled")

	// ErrValueMissing — значение не найдено в хранилище run.
	ErrValueMissing = errors.New("value missing")

	// ErrForcedFailure — ошибка задачи Fail.
	ErrForcedFailure = errors.New("forced failure")
)

// WaitConfig — конфигурация с паузой перед работой.
type WaitConfig struct {
	task.BaseConfig

	// Wait — пауза в секундах.
	Wait int `json:"wait" validate:"gte=0"`

	// WaitMs — дополнительная пауза в миллисекундах.
	WaitMs int `json:"wait_ms,omitempty" validate:"gte=0"`
}

// Duration возвращает суммарную паузу.
func (c *WaitConfig) Duration() time.Duration {
	return time.Duration(c.Wait)*time.Second + time.Duration(c.WaitMs)*time.Millisecond
}

// Register регистрирует все встроенные задачи и возвращает их идентификаторы.
func Register(reg *task.Registry) ([]string, error) {
	impls := []task.Implementation{
		Wait{},
		SaveMessage{},
		EchoMessage{},
		NewHTTPRequest(),
		Transform{},
		Fail{},
	}

	ids := make([]string, 0, len(impls))
	for _, impl := range impls {
		id, err := reg.Register(impl)
		if err != nil {
			return nil, fmt.Errorf("register %T: %w", impl, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ID возвращает идентификатор встроенной задачи.
// Паникует для анонимных типов, которые Register не принимает.
func ID(impl task.Implementation) string {
	id, err := task.IdentifierOf(impl)
	if err != nil {
		panic(err)
	}
	return id
}

// sleep ждёт d или отмены context.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
