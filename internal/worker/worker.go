package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/mq"
)

const defaultPrefetch = 5

// Worker выполняет шаги распределённых цепочек.
//
// Worker — stateless компонент: всё состояние run хранится в
// ResultStore, а позиция в цепочке — в самом сообщении. Workers
// масштабируются горизонтально.
type Worker struct {
	conn     *mq.Connection
	handlers executor.Handlers
	next     *executor.AMQP
	prefetch int

	consumer *mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Conn — соединение с RabbitMQ (нужно только для Start).
	Conn *mq.Connection

	// Handlers — обработчики элементов цепочки (runner.Distributed.Handlers).
	Handlers executor.Handlers

	// Publisher публикует следующий шаг цепочки.
	Publisher executor.StepPublisher

	// Prefetch — количество неподтверждённых сообщений (default: 5).
	Prefetch int

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	w := &Worker{
		conn:     cfg.Conn,
		handlers: cfg.Handlers,
		prefetch: prefetch,
		logger:   logger,
	}
	if cfg.Publisher != nil {
		w.next = executor.NewAMQP(cfg.Publisher, logger)
	}
	return w
}

// Start запускает consumer очереди chains.steps.
func (w *Worker) Start(ctx context.Context) error {
	if w.next == nil {
		return ErrNoPublisher
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"queue", mq.QueueChainSteps,
		"prefetch", w.prefetch,
	)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:    mq.QueueChainSteps,
		Handler:  w.handleStep,
		Prefetch: w.prefetch,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("step consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт завершения текущего шага.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// handleStep обрабатывает сообщение chain.step.
func (w *Worker) handleStep(ctx context.Context, delivery *mq.Delivery) error {
	if w.IsStopped() {
		return ErrWorkerStopped
	}

	if delivery.Message.Type != mq.MessageTypeChainStep {
		// Чужое сообщение не исправится повтором
		w.logger.Warn("unexpected message type", "type", delivery.Message.Type, "message_id", delivery.Message.ID)
		return nil
	}

	step, err := mq.ParsePayload[executor.Step](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse chain step", "message_id", delivery.Message.ID, "error", err)
		return nil
	}

	if err := w.ProcessStep(ctx, step); err != nil {
		if errors.Is(err, ErrInvalidStep) {
			w.logger.Error("dropping chain step", "message_id", delivery.Message.ID, "error", err)
			return nil
		}
		return err
	}
	return nil
}

// ProcessStep выполняет элемент step.Cursor и публикует следующий шаг.
//
// Ошибка элемента не возвращается: её уже обработали обработчики
// ошибок цепочки. Возвращает ErrInvalidStep для некорректного шага и
// ошибку публикации, если следующий шаг не отправлен.
func (w *Worker) ProcessStep(ctx context.Context, step executor.Step) error {
	if len(step.Chain.Items) == 0 || step.Cursor < 0 || step.Cursor >= len(step.Chain.Items) {
		return fmt.Errorf("%w: chain %s cursor %d of %d",
			ErrInvalidStep, step.Chain.ID, step.Cursor, len(step.Chain.Items))
	}

	item := step.Chain.Items[step.Cursor]
	logger := w.logger.With(
		"chain_id", step.Chain.ID,
		"cursor", step.Cursor,
		"kind", item.Kind,
		"pipeline_id", item.Args.PipelineID,
		"run_id", item.Args.RunID,
	)
	logger.Debug("executing chain item", "pipeline_task", item.Args.PipelineTask)

	finished, err := executor.Advance(ctx, w.handlers, &step.Chain, step.Cursor, logger)
	if err != nil {
		// Обработчики ошибок уже вызваны, цепочка завершена
		logger.Info("chain finished with error", "error", err)
		return nil
	}
	if finished {
		logger.Debug("chain finished")
		return nil
	}

	if w.next == nil {
		return ErrNoPublisher
	}
	next := executor.Step{Chain: step.Chain, Cursor: step.Cursor + 1}
	return w.next.Publish(ctx, next)
}
