package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/reporter"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/steps"
	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/task"
)

// queue — очередь chains.steps в памяти.
type queue struct {
	mu    sync.Mutex
	steps []executor.Step
	err   error
}

func (q *queue) PublishJSON(_ context.Context, exchange mq.Exchange, routingKey mq.RoutingKey, msgType mq.MessageType, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return q.err
	}
	if exchange != mq.ExchangeChains || routingKey != mq.RoutingKeyStep || msgType != mq.MessageTypeChainStep {
		return errors.New("unexpected route")
	}
	q.steps = append(q.steps, payload.(executor.Step))
	return nil
}

func (q *queue) pop() (executor.Step, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.steps) == 0 {
		return executor.Step{}, false
	}
	step := q.steps[0]
	q.steps = q.steps[1:]
	return step, true
}

type fixture struct {
	q         *queue
	mem       *store.Memory
	rec       *reporter.Recorder
	worker    *Worker
	submitter *runner.Submitter
	pipelines *pipeline.Registry
}

func newFixture(t *testing.T, specs ...pipeline.Spec) *fixture {
	t.Helper()

	tasks := task.NewRegistry()
	if _, err := steps.Register(tasks); err != nil {
		t.Fatalf("register steps: %v", err)
	}
	pipelines := pipeline.NewRegistry()
	for _, spec := range specs {
		def, err := pipeline.Build(spec, tasks)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		_ = pipelines.Register(def)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{q: &queue{}, mem: store.NewMemory(), rec: &reporter.Recorder{}, pipelines: pipelines}

	// Отправитель и worker разделяют каталог и очередь
	dist := runner.NewDistributed(
		runner.Config{Results: f.mem, Values: f.mem, Reporter: f.rec, Logger: logger},
		executor.NewAMQP(f.q, logger),
		pipelines,
	)
	f.submitter = runner.NewSubmitter(f.mem, logger, dist)
	f.worker = New(Config{Handlers: dist.Handlers(), Publisher: f.q, Logger: logger})
	return f
}

// drain выполняет шаги, пока очередь не опустеет.
func (f *fixture) drain(t *testing.T) int {
	t.Helper()
	n := 0
	for {
		step, ok := f.q.pop()
		if !ok {
			return n
		}
		if err := f.worker.ProcessStep(context.Background(), step); err != nil {
			t.Fatalf("process step %d: %v", step.Cursor, err)
		}
		n++
	}
}

func (f *fixture) submit(t *testing.T, id string, input map[string]any) string {
	t.Helper()
	def, err := f.pipelines.Get(id)
	if err != nil {
		t.Fatalf("get pipeline: %v", err)
	}
	sub, err := f.submitter.Submit(context.Background(), def, runner.NameDistributed, input)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return sub.RunID()
}

func basicSpec() pipeline.Spec {
	return pipeline.Spec{
		ID: "basic",
		Tasks: []pipeline.TaskSpec{
			{Name: "save", Type: steps.ID(steps.SaveMessage{})},
			{Name: "echo", Type: steps.ID(steps.EchoMessage{}), Config: map[string]any{"parents": []any{"save"}}},
		},
		Defaults: map[string]any{"wait": 0},
	}
}

func failingSpec() pipeline.Spec {
	return pipeline.Spec{
		ID: "failing",
		Tasks: []pipeline.TaskSpec{
			{Name: "A", Type: steps.ID(steps.Fail{})},
			{Name: "B", Type: steps.ID(steps.Wait{}), Config: map[string]any{"parents": []any{"A"}, "wait": 0}},
		},
	}
}

func TestWorker_ExecutesChain(t *testing.T) {
	f := newFixture(t, basicSpec())
	runID := f.submit(t, "basic", map[string]any{"message": "hello"})

	// Submit не выполняет ничего сам
	if len(f.rec.Trace()) != 0 {
		t.Fatalf("nothing should run before worker, got %v", f.rec.Trace())
	}

	// RUNNING, save, echo, DONE
	if n := f.drain(t); n != 4 {
		t.Errorf("expected 4 steps, got %d", n)
	}

	want := []string{
		"pipeline RUNNING",
		"save RUNNING",
		"save DONE",
		"echo RUNNING",
		"echo DONE",
		"pipeline DONE",
	}
	got := f.rec.Trace()
	if len(got) != len(want) {
		t.Fatalf("unexpected trace: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	run, _ := f.mem.GetRun(context.Background(), "basic", runID)
	if run.Status != domain.StatusDone {
		t.Errorf("expected DONE, got %s", run.Status)
	}
}

func TestWorker_FailureStopsChain(t *testing.T) {
	f := newFixture(t, failingSpec())
	runID := f.submit(t, "failing", nil)

	// RUNNING и упавший A; B и DONE не публикуются
	if n := f.drain(t); n != 2 {
		t.Errorf("expected 2 steps, got %d", n)
	}

	results, _ := f.mem.ListTaskResults(context.Background(), "failing", runID)
	got := map[string]domain.Status{}
	for _, r := range results {
		got[r.PipelineTask] = r.Status
	}
	if got["A"] != domain.StatusRuntimeError || got["B"] != domain.StatusCancelled {
		t.Errorf("unexpected statuses: %v", got)
	}

	run, _ := f.mem.GetRun(context.Background(), "failing", runID)
	if run.Status != domain.StatusRuntimeError || run.Message != runner.MessagePipelineCancelled {
		t.Errorf("unexpected run: %s %q", run.Status, run.Message)
	}
}

func TestWorker_HandleDelivery(t *testing.T) {
	f := newFixture(t, basicSpec())
	f.submit(t, "basic", map[string]any{"message": "hello"})

	step, _ := f.q.pop()

	// Сообщение проходит через JSON, как из брокера
	body, err := json.Marshal(mq.Message{ID: "m1", Type: mq.MessageTypeChainStep, Payload: step})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var msg mq.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if err := f.worker.handleStep(context.Background(), &mq.Delivery{Message: msg}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	next, ok := f.q.pop()
	if !ok || next.Cursor != 1 || next.Chain.ID != step.Chain.ID {
		t.Errorf("expected next step with cursor 1, got %+v", next)
	}
	if next.Chain.Items[1].Args.Input["message"] != "hello" {
		t.Errorf("input should survive serialization, got %v", next.Chain.Items[1].Args.Input)
	}
}

func TestWorker_InvalidStep(t *testing.T) {
	f := newFixture(t)

	err := f.worker.ProcessStep(context.Background(), executor.Step{Chain: executor.Chain{ID: "c"}, Cursor: 0})
	if !errors.Is(err, ErrInvalidStep) {
		t.Errorf("expected ErrInvalidStep, got %v", err)
	}

	// Некорректный шаг подтверждается, а не возвращается в очередь
	msg := mq.Message{Type: mq.MessageTypeChainStep, Payload: executor.Step{Cursor: 3}}
	if err := f.worker.handleStep(context.Background(), &mq.Delivery{Message: msg}); err != nil {
		t.Errorf("invalid step should be acked, got %v", err)
	}

	msg = mq.Message{Type: "other"}
	if err := f.worker.handleStep(context.Background(), &mq.Delivery{Message: msg}); err != nil {
		t.Errorf("foreign message should be acked, got %v", err)
	}
}

func TestWorker_PublishFailure(t *testing.T) {
	f := newFixture(t, basicSpec())
	f.submit(t, "basic", map[string]any{"message": "hello"})
	step, _ := f.q.pop()

	f.q.err = errors.New("broker unavailable")
	if err := f.worker.ProcessStep(context.Background(), step); err == nil {
		t.Error("expected publish error")
	}
}

func TestWorker_Stopped(t *testing.T) {
	f := newFixture(t)
	f.worker.Stop()

	if !f.worker.IsStopped() {
		t.Fatal("worker should be stopped")
	}
	err := f.worker.handleStep(context.Background(), &mq.Delivery{})
	if !errors.Is(err, ErrWorkerStopped) {
		t.Errorf("expected ErrWorkerStopped, got %v", err)
	}
}

func TestWorker_StartWithoutPublisher(t *testing.T) {
	w := New(Config{})
	if err := w.Start(context.Background()); !errors.Is(err, ErrNoPublisher) {
		t.Errorf("expected ErrNoPublisher, got %v", err)
	}
}

func TestWorker_RepeatedStepDoesNotRerunTask(t *testing.T) {
	f := newFixture(t, basicSpec())
	runID := f.submit(t, "basic", map[string]any{"message": "hello"})

	// pipeline RUNNING
	first, _ := f.q.pop()
	if err := f.worker.ProcessStep(context.Background(), first); err != nil {
		t.Fatalf("process step: %v", err)
	}

	// save выполнен, но следующий шаг не опубликован: брокер вернёт
	// сообщение в очередь
	save, _ := f.q.pop()
	f.q.err = errors.New("broker unavailable")
	if err := f.worker.ProcessStep(context.Background(), save); err == nil {
		t.Fatal("expected publish error")
	}
	f.q.err = nil

	// Повторная доставка только продвигает цепочку
	if err := f.worker.ProcessStep(context.Background(), save); err != nil {
		t.Fatalf("repeated step: %v", err)
	}
	if n := f.drain(t); n != 2 {
		t.Errorf("expected 2 remaining steps, got %d", n)
	}

	want := []string{
		"pipeline RUNNING",
		"save RUNNING",
		"save DONE",
		"echo RUNNING",
		"echo DONE",
		"pipeline DONE",
	}
	got := f.rec.Trace()
	if len(got) != len(want) {
		t.Fatalf("unexpected trace: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	run, _ := f.mem.GetRun(context.Background(), "basic", runID)
	if run.Status != domain.StatusDone {
		t.Errorf("expected DONE, got %s %q", run.Status, run.Message)
	}
}
