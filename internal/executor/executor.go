package executor

import (
	"context"
	"log/slog"
	"sync"
)

// Executor принимает цепочку и выполняет её асинхронно.
type Executor interface {
	// Submit ставит цепочку на выполнение и сразу возвращается.
	Submit(ctx context.Context, chain *Chain) (*Submission, error)
}

// Submission — дескриптор отправленной цепочки.
type Submission struct {
	ChainID string

	done chan struct{}
	err  error
}

// Tracked сообщает, можно ли дождаться результата цепочки.
func (s *Submission) Tracked() bool {
	return s.done != nil
}

// Done закрывается после завершения цепочки (nil, если не отслеживается).
func (s *Submission) Done() <-chan struct{} {
	return s.done
}

// Wait ждёт завершения цепочки и возвращает ошибку упавшего элемента.
func (s *Submission) Wait(ctx context.Context) error {
	if s.done == nil {
		return ErrNotTracked
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.err
	}
}

// Local выполняет цепочки в горутинах текущего процесса.
type Local struct {
	handlers Handlers
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocal создаёт локальный исполнитель.
func NewLocal(handlers Handlers, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{handlers: handlers, logger: logger}
}

// SetHandlers заменяет набор обработчиков (до первого Submit).
func (l *Local) SetHandlers(handlers Handlers) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = handlers
}

// Submit реализует Executor.
//
// Цепочка выполняется с context, не зависящим от отмены ctx:
// отправитель не управляет уже принятой работой.
func (l *Local) Submit(ctx context.Context, chain *Chain) (*Submission, error) {
	if len(chain.Items) == 0 {
		return nil, ErrEmptyChain
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrExecutorClosed
	}
	handlers := l.handlers
	l.wg.Add(1)
	l.mu.Unlock()

	sub := &Submission{ChainID: chain.ID, done: make(chan struct{})}
	runCtx := context.WithoutCancel(ctx)

	go func() {
		defer l.wg.Done()
		defer close(sub.done)
		sub.err = RunAll(runCtx, handlers, chain, l.logger)
	}()

	return sub, nil
}

// Close запрещает новые цепочки и ждёт завершения текущих.
func (l *Local) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
}
