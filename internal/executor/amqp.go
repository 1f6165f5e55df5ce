package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Conveyor/internal/mq"
)

// Step — сообщение шага цепочки: вся цепочка и индекс следующего элемента.
type Step struct {
	Chain  Chain `json:"chain"`
	Cursor int   `json:"cursor"`
}

// StepPublisher публикует шаги цепочек. Реализуется *mq.Publisher.
type StepPublisher interface {
	PublishJSON(ctx context.Context, exchange mq.Exchange, routingKey mq.RoutingKey, msgType mq.MessageType, payload any) error
}

// AMQP отправляет цепочки в RabbitMQ.
//
// Каждый шаг — отдельное сообщение в chains.steps. Worker выполняет
// элемент и публикует следующий шаг, поэтому элемент N+1 никогда не
// начинается раньше, чем завершился элемент N.
type AMQP struct {
	publisher StepPublisher
	logger    *slog.Logger
}

// NewAMQP создаёт исполнитель поверх RabbitMQ.
func NewAMQP(publisher StepPublisher, logger *slog.Logger) *AMQP {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQP{publisher: publisher, logger: logger}
}

// Submit реализует Executor. Результат цепочки отправителю недоступен.
func (a *AMQP) Submit(ctx context.Context, chain *Chain) (*Submission, error) {
	if len(chain.Items) == 0 {
		return nil, ErrEmptyChain
	}
	if err := a.Publish(ctx, Step{Chain: *chain, Cursor: 0}); err != nil {
		return nil, err
	}

	a.logger.Debug("chain submitted", "chain_id", chain.ID, "items", len(chain.Items))
	return &Submission{ChainID: chain.ID}, nil
}

// Publish публикует шаг цепочки.
func (a *AMQP) Publish(ctx context.Context, step Step) error {
	err := a.publisher.PublishJSON(ctx, mq.ExchangeChains, mq.RoutingKeyStep, mq.MessageTypeChainStep, step)
	if err != nil {
		return fmt.Errorf("publish chain %s step %d: %w", step.Chain.ID, step.Cursor, err)
	}
	return nil
}
