package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/task"
)

// MessageKey — ключ сообщения в хранилище значений run.
const MessageKey = "message"

// EchoKey — ключ, под которым EchoMessage сохраняет прочитанное.
const EchoKey = "echo"

// MessageInput — input задач SaveMessage и EchoMessage.
type MessageInput struct {
	Message string `json:"message"`
}

// SaveMessage сохраняет input.message в хранилище значений run.
//
// Конфигурация: {"wait": 2}. Input: {"message": "..."}.
type SaveMessage struct{}

// Title реализует task.Titled.
func (SaveMessage) Title() string { return "Save message" }

// NewConfig реализует task.Implementation.
func (SaveMessage) NewConfig() task.Config { return &WaitConfig{} }

// NewInput реализует task.Implementation.
func (SaveMessage) NewInput() any { return &MessageInput{} }

// Run реализует task.Implementation.
func (SaveMessage) Run(ctx context.Context, req *task.Request) error {
	cfg := req.Config.(*WaitConfig)
	in := req.Input.(*MessageInput)

	if err := sleep(ctx, cfg.Duration()); err != nil {
		return err
	}
	return req.Values.PutValue(ctx, req.PipelineID, req.RunID, MessageKey, in.Message)
}

// EchoMessage читает сообщение, сохранённое SaveMessage, и пишет его в лог.
//
// Прочитанное значение сохраняется под ключом EchoKey.
type EchoMessage struct{}

// Title реализует task.Titled.
func (EchoMessage) Title() string { return "Echo message from store" }

// NewConfig реализует task.Implementation.
func (EchoMessage) NewConfig() task.Config { return &WaitConfig{} }

// NewInput реализует task.Implementation.
func (EchoMessage) NewInput() any { return &MessageInput{} }

// Run реализует task.Implementation.
func (EchoMessage) Run(ctx context.Context, req *task.Request) error {
	cfg := req.Config.(*WaitConfig)
	if err := sleep(ctx, cfg.Duration()); err != nil {
		return err
	}

	message, err := req.Values.GetValue(ctx, req.PipelineID, req.RunID, MessageKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrValueMissing, MessageKey)
		}
		return err
	}

	req.Logger.Info("echo", "message", message)
	return req.Values.PutValue(ctx, req.PipelineID, req.RunID, EchoKey, message)
}
