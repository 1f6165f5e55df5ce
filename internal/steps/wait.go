package steps

import (
	"context"

	"github.com/shaiso/Conveyor/internal/task"
)

// Wait — пауза на Wait секунд (+ WaitMs миллисекунд).
//
// Конфигурация:
//
//	{"wait": 2}
//	{"wait": 0, "wait_ms": 500}
//
// Input не принимает.
type Wait struct{}

// Title реализует task.Titled.
func (Wait) Title() string { return "Wait" }

// NewConfig реализует task.Implementation.
func (Wait) NewConfig() task.Config { return &WaitConfig{} }

// NewInput реализует task.Implementation.
func (Wait) NewInput() any { return nil }

// Run реализует task.Implementation.
func (Wait) Run(ctx context.Context, req *task.Request) error {
	cfg := req.Config.(*WaitConfig)
	if err := sleep(ctx, cfg.Duration()); err != nil {
		return err
	}
	req.Logger.Debug("wait finished", "iteration", req.Iteration, "duration", cfg.Duration())
	return nil
}
