package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/mq"
)

// journal — обработчики, записывающие порядок вызовов.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

var errBoom = errors.New("boom")

func (j *journal) handlers() Handlers {
	return Handlers{
		"ok": func(_ context.Context, item Item, _ *Failure) error {
			j.add("ok:" + item.Args.PipelineTask)
			return nil
		},
		"fail": func(_ context.Context, item Item, _ *Failure) error {
			j.add("fail:" + item.Args.PipelineTask)
			return errBoom
		},
		"item-error": func(_ context.Context, item Item, f *Failure) error {
			j.add("item-error:" + f.Item.Args.PipelineTask)
			return nil
		},
		"chain-error": func(_ context.Context, item Item, f *Failure) error {
			remaining := ""
			for _, r := range f.Remaining {
				remaining += r.Args.PipelineTask
			}
			j.add("chain-error:" + remaining)
			return nil
		},
	}
}

func item(kind, name string) Item {
	return NewItem(kind, Args{PipelineTask: name})
}

func TestRunAll_Sequential(t *testing.T) {
	j := &journal{}
	chain := NewChain([]Item{item("ok", "a"), item("ok", "b"), item("ok", "c")}, nil)

	if err := RunAll(context.Background(), j.handlers(), chain, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := j.list()
	want := []string{"ok:a", "ok:b", "ok:c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestRunAll_FailureShortCircuits(t *testing.T) {
	j := &journal{}
	onChainError := NewItem("chain-error", Args{})
	chain := NewChain([]Item{
		item("ok", "a"),
		item("fail", "b").WithOnError(NewItem("item-error", Args{})),
		item("ok", "c"),
		item("ok", "d"),
	}, &onChainError)

	err := RunAll(context.Background(), j.handlers(), chain, nil)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}

	// Сначала обработчик элемента, затем цепочки; c и d не выполнялись
	got := j.list()
	want := []string{"ok:a", "fail:b", "item-error:b", "chain-error:cd"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestAdvance_UnknownKind(t *testing.T) {
	chain := NewChain([]Item{item("missing", "a")}, nil)

	finished, err := Advance(context.Background(), Handlers{}, chain, 0, nil)
	if !finished || !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected finished with ErrUnknownKind, got %v, %v", finished, err)
	}
}

func TestAdvance_CursorOutOfRange(t *testing.T) {
	chain := NewChain([]Item{item("ok", "a")}, nil)

	_, err := Advance(context.Background(), (&journal{}).handlers(), chain, 5, nil)
	if !errors.Is(err, ErrCursorOutOfRange) {
		t.Errorf("expected ErrCursorOutOfRange, got %v", err)
	}
}

func TestAdvance_PanicBecomesError(t *testing.T) {
	handlers := Handlers{"panic": func(context.Context, Item, *Failure) error { panic("oops") }}
	chain := NewChain([]Item{item("panic", "a")}, nil)

	finished, err := Advance(context.Background(), handlers, chain, 0, nil)
	if !finished || err == nil {
		t.Errorf("expected finished with error, got %v, %v", finished, err)
	}
}

func TestLocal_SubmitAndWait(t *testing.T) {
	j := &journal{}
	local := NewLocal(j.handlers(), nil)
	defer local.Close()

	// Отмена ctx отправителя не прерывает принятую цепочку
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := local.Submit(ctx, NewChain([]Item{item("ok", "a"), item("ok", "b")}, nil))
	cancel()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sub.Tracked() {
		t.Fatal("local submission should be tracked")
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	if err := sub.Wait(waitCtx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(j.list()) != 2 {
		t.Errorf("expected 2 calls, got %v", j.list())
	}
}

func TestLocal_Closed(t *testing.T) {
	local := NewLocal(Handlers{}, nil)
	local.Close()

	_, err := local.Submit(context.Background(), NewChain([]Item{item("ok", "a")}, nil))
	if !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("expected ErrExecutorClosed, got %v", err)
	}
}

// capturePublisher запоминает опубликованные шаги.
type capturePublisher struct {
	steps []Step
	err   error
}

func (p *capturePublisher) PublishJSON(_ context.Context, exchange mq.Exchange, routingKey mq.RoutingKey, msgType mq.MessageType, payload any) error {
	if p.err != nil {
		return p.err
	}
	if exchange != mq.ExchangeChains || routingKey != mq.RoutingKeyStep || msgType != mq.MessageTypeChainStep {
		return errors.New("unexpected destination")
	}
	p.steps = append(p.steps, payload.(Step))
	return nil
}

func TestAMQP_Submit(t *testing.T) {
	pub := &capturePublisher{}
	exec := NewAMQP(pub, nil)

	chain := NewChain([]Item{item("ok", "a"), item("ok", "b")}, nil)
	sub, err := exec.Submit(context.Background(), chain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.ChainID != chain.ID || sub.Tracked() {
		t.Errorf("unexpected submission: %+v", sub)
	}
	if err := sub.Wait(context.Background()); !errors.Is(err, ErrNotTracked) {
		t.Errorf("expected ErrNotTracked, got %v", err)
	}

	if len(pub.steps) != 1 || pub.steps[0].Cursor != 0 || pub.steps[0].Chain.ID != chain.ID {
		t.Errorf("expected first step published, got %+v", pub.steps)
	}
}

func TestAMQP_SubmitError(t *testing.T) {
	exec := NewAMQP(&capturePublisher{err: errors.New("broker down")}, nil)

	if _, err := exec.Submit(context.Background(), NewChain([]Item{item("ok", "a")}, nil)); err == nil {
		t.Error("expected publish error")
	}
	if _, err := exec.Submit(context.Background(), NewChain(nil, nil)); !errors.Is(err, ErrEmptyChain) {
		t.Errorf("expected ErrEmptyChain, got %v", err)
	}
}
