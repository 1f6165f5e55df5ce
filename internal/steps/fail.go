package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/Conveyor/internal/task"
)

// FailConfig — конфигурация Fail.
type FailConfig struct {
	task.BaseConfig
	Message string `json:"message,omitempty"`
}

// Fail всегда завершается ошибкой ErrForcedFailure.
type Fail struct{}

// Title реализует task.Titled.
func (Fail) Title() string { return "Fail" }

// NewConfig реализует task.Implementation.
func (Fail) NewConfig() task.Config { return &FailConfig{} }

// NewInput реализует task.Implementation.
func (Fail) NewInput() any { return nil }

// Run реализует task.Implementation.
func (Fail) Run(_ context.Context, req *task.Request) error {
	cfg := req.Config.(*FailConfig)
	if cfg.Message == "" {
		return ErrForcedFailure
	}
	return fmt.Errorf("%w: %s", ErrForcedFailure, cfg.Message)
}
