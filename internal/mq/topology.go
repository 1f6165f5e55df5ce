package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

// Exchanges.
const (
	ExchangeChains Exchange = "conveyor.chains"
	ExchangeDLQ    Exchange = "conveyor.dlq"
)

// Queues.
const (
	QueueChainSteps Queue = "chains.steps"
	QueueDLQChains  Queue = "dlq.chains"
)

// Routing keys.
const (
	RoutingKeyStep      RoutingKey = "step"
	RoutingKeyDLQChains RoutingKey = "chains"
)

// SetupTopology объявляет exchanges, queues и bindings.
// Идемпотентна: повторное объявление с теми же параметрами безопасно.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangeChains, ExchangeDLQ} {
			if err := ch.ExchangeDeclare(string(ex), "direct", true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		queues := []struct {
			name Queue
			args amqp.Table
		}{
			// chains.steps — шаги, упавшие повторно, уходят в DLQ
			{QueueChainSteps, amqp.Table{
				"x-dead-letter-exchange":    string(ExchangeDLQ),
				"x-dead-letter-routing-key": string(RoutingKeyDLQChains),
			}},
			{QueueDLQChains, nil},
		}
		for _, q := range queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		bindings := []struct {
			queue      Queue
			routingKey RoutingKey
			exchange   Exchange
		}{
			{QueueChainSteps, RoutingKeyStep, ExchangeChains},
			{QueueDLQChains, RoutingKeyDLQChains, ExchangeDLQ},
		}
		for _, b := range bindings {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Conveyor RabbitMQ Topology:

    conveyor.chains (direct)
    └── chains.steps [routing: step]
            Consumer: conveyor-worker
            DLQ: dlq.chains

    conveyor.dlq (direct)
    └── dlq.chains [routing: chains]
            Manual processing
  `
}
