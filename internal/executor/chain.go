package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Ошибки исполнителя.
var (
	// ErrUnknownKind — для Kind элемента нет обработчика.
	ErrUnknownKind = errors.New("no handler for item kind")

	// ErrEmptyChain — цепочка без элементов.
	ErrEmptyChain = errors.New("chain has no items")

	// ErrCursorOutOfRange — курсор за пределами цепочки.
	ErrCursorOutOfRange = errors.New("chain cursor out of range")

	// ErrExecutorClosed — исполнитель остановлен.
	ErrExecutorClosed = errors.New("executor is closed")

	// ErrNotTracked — результат цепочки недоступен отправителю.
	ErrNotTracked = errors.New("submission is not tracked")
)

// Args — аргументы элемента цепочки.
type Args struct {
	PipelineID   string         `json:"pipeline_id"`
	RunID        string         `json:"run_id"`
	PipelineTask string         `json:"pipeline_task,omitempty"`
	Status       domain.Status  `json:"status,omitempty"`
	Message      string         `json:"message,omitempty"`
	Iteration    string         `json:"iteration,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
}

// Item — элемент цепочки.
type Item struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Args Args   `json:"args"`

	// OnError — обработчик ошибки этого элемента.
	OnError *Item `json:"on_error,omitempty"`
}

// NewItem создаёт элемент со сгенерированным ID.
func NewItem(kind string, args Args) Item {
	return Item{ID: uuid.New().String(), Kind: kind, Args: args}
}

// WithOnError возвращает копию элемента с обработчиком ошибки.
func (i Item) WithOnError(handler Item) Item {
	i.OnError = &handler
	return i
}

// Chain — последовательная цепочка элементов.
type Chain struct {
	ID      string `json:"id"`
	Items   []Item `json:"items"`
	OnError *Item  `json:"on_error,omitempty"`
}

// NewChain создаёт цепочку со сгенерированным ID.
func NewChain(items []Item, onError *Item) *Chain {
	return &Chain{ID: uuid.New().String(), Items: items, OnError: onError}
}

// Failure — описание упавшего элемента для обработчиков ошибок.
type Failure struct {
	ChainID string
	Index   int
	Item    Item
	Err     error

	// Remaining — элементы после упавшего, которые не будут выполнены.
	Remaining []Item
}

// Handler выполняет элемент. failure не nil, если элемент —
// обработчик ошибки.
type Handler func(ctx context.Context, item Item, failure *Failure) error

// Handlers — обработчики по Kind.
type Handlers map[string]Handler

// Merge возвращает объединение обработчиков; other имеет приоритет.
func (h Handlers) Merge(other Handlers) Handlers {
	out := make(Handlers, len(h)+len(other))
	for k, v := range h {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

func (h Handlers) call(ctx context.Context, item Item, failure *Failure) (err error) {
	handler, ok := h[item.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, item.Kind)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("item %s (%s) panicked: %v", item.ID, item.Kind, r)
		}
	}()
	return handler(ctx, item, failure)
}

// Advance выполняет элемент цепочки с индексом cursor.
//
// Возвращает finished=true, если цепочка завершена: выполнен последний
// элемент или элемент упал (тогда уже вызваны обработчики ошибок и
// возвращается ошибка элемента).
func Advance(ctx context.Context, handlers Handlers, chain *Chain, cursor int, logger *slog.Logger) (finished bool, err error) {
	if len(chain.Items) == 0 {
		return true, ErrEmptyChain
	}
	if cursor < 0 || cursor >= len(chain.Items) {
		return true, fmt.Errorf("%w: %d of %d", ErrCursorOutOfRange, cursor, len(chain.Items))
	}
	if logger == nil {
		logger = slog.Default()
	}

	item := chain.Items[cursor]
	itemErr := handlers.call(ctx, item, nil)
	if itemErr == nil {
		telemetry.ChainSteps.WithLabelValues(item.Kind, "ok").Inc()
		return cursor == len(chain.Items)-1, nil
	}

	telemetry.ChainSteps.WithLabelValues(item.Kind, "error").Inc()
	logger.Warn("chain item failed",
		"chain_id", chain.ID,
		"item_id", item.ID,
		"kind", item.Kind,
		"cursor", cursor,
		"error", itemErr,
	)

	failure := &Failure{
		ChainID:   chain.ID,
		Index:     cursor,
		Item:      item,
		Err:       itemErr,
		Remaining: append([]Item(nil), chain.Items[cursor+1:]...),
	}

	// Сначала обработчик элемента, затем цепочки
	for _, onError := range []*Item{item.OnError, chain.OnError} {
		if onError == nil {
			continue
		}
		if err := handlers.call(ctx, *onError, failure); err != nil {
			telemetry.ChainSteps.WithLabelValues(onError.Kind, "error").Inc()
			logger.Error("chain error handler failed",
				"chain_id", chain.ID,
				"kind", onError.Kind,
				"error", err,
			)
			continue
		}
		telemetry.ChainSteps.WithLabelValues(onError.Kind, "ok").Inc()
	}

	return true, itemErr
}

// RunAll выполняет цепочку целиком в текущей горутине.
func RunAll(ctx context.Context, handlers Handlers, chain *Chain, logger *slog.Logger) error {
	for cursor := 0; ; cursor++ {
		finished, err := Advance(ctx, handlers, chain, cursor, logger)
		if finished {
			return err
		}
	}
}
