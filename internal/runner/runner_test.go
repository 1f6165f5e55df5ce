package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/executor"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/reporter"
	"github.com/shaiso/Conveyor/internal/steps"
	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/task"
)

// harness — eager и distributed раннеры поверх общего хранилища в памяти.
type harness struct {
	mem       *store.Memory
	rec       *reporter.Recorder
	tasks     *task.Registry
	pipelines *pipeline.Registry
	local     *executor.Local
	eager     *Eager
	dist      *Distributed
	submitter *Submitter
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	tasks := task.NewRegistry()
	if _, err := steps.Register(tasks); err != nil {
		t.Fatalf("register steps: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		mem:       store.NewMemory(),
		rec:       &reporter.Recorder{},
		tasks:     tasks,
		pipelines: pipeline.NewRegistry(),
	}
	cfg := Config{Results: h.mem, Values: h.mem, Reporter: h.rec, Logger: logger}

	h.local = executor.NewLocal(nil, logger)
	h.eager = NewEager(cfg)
	h.dist = NewDistributed(cfg, h.local, h.pipelines)
	h.local.SetHandlers(h.dist.Handlers())
	h.submitter = NewSubmitter(h.mem, logger, h.eager, h.dist)

	t.Cleanup(h.local.Close)
	return h
}

// build собирает и регистрирует pipeline.
func (h *harness) build(t *testing.T, spec pipeline.Spec) *pipeline.Definition {
	t.Helper()
	def, err := pipeline.Build(spec, h.tasks)
	if err != nil {
		t.Fatalf("build %s: %v", spec.ID, err)
	}
	if err := h.pipelines.Register(def); err != nil {
		t.Fatalf("register %s: %v", spec.ID, err)
	}
	return def
}

// submit запускает pipeline и ждёт завершения всех runs.
func (h *harness) submit(t *testing.T, def *pipeline.Definition, strategy string, input map[string]any) *Submission {
	t.Helper()

	sub, err := h.submitter.Submit(context.Background(), def, strategy, input)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, run := range sub.Runs {
		if run.Handle.Submission != nil {
			// Ошибка упавшего элемента ожидаема в тестах отмены
			if err := run.Handle.Submission.Wait(ctx); errors.Is(err, context.DeadlineExceeded) {
				t.Fatalf("chain %s did not finish", run.ChainID)
			}
		}
	}
	return sub
}

// statuses возвращает "имя=СТАТУС" задач run в топологическом порядке.
func (h *harness) statuses(t *testing.T, def *pipeline.Definition, runID string) string {
	t.Helper()

	results, err := h.mem.ListTaskResults(context.Background(), def.ID(), runID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	byName := make(map[string]domain.Status, len(results))
	for _, r := range results {
		byName[r.PipelineTask] = r.Status
	}

	parts := make([]string, 0, len(results))
	for _, tk := range def.Order() {
		parts = append(parts, tk.Name()+"="+byName[tk.Name()].String())
	}
	return strings.Join(parts, ",")
}

func (h *harness) runStatus(t *testing.T, def *pipeline.Definition, runID string) domain.Status {
	t.Helper()
	run, err := h.mem.GetRun(context.Background(), def.ID(), runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	return run.Status
}

func waitID() string { return steps.ID(steps.Wait{}) }
func failID() string { return steps.ID(steps.Fail{}) }
func parents(names ...string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}

func basicSpec(id string) pipeline.Spec {
	return pipeline.Spec{
		ID: id,
		Tasks: []pipeline.TaskSpec{
			{Name: "save", Type: steps.ID(steps.SaveMessage{}), Config: map[string]any{"wait": 0}},
			{Name: "echo", Type: steps.ID(steps.EchoMessage{}), Config: map[string]any{"wait": 0, "parents": parents("save")}},
		},
	}
}

// chainSpec — A→B→C; first задаёт тип задачи A.
func chainSpec(id, first string) pipeline.Spec {
	return pipeline.Spec{
		ID: id,
		Tasks: []pipeline.TaskSpec{
			{Name: "A", Type: first},
			{Name: "B", Type: waitID(), Config: map[string]any{"parents": parents("A")}},
			{Name: "C", Type: waitID(), Config: map[string]any{"parents": parents("B")}},
		},
		Defaults: map[string]any{"wait": 0},
	}
}

var successTrace = []string{
	"pipeline RUNNING",
	"save RUNNING",
	"save DONE",
	"echo RUNNING",
	"echo DONE",
	"pipeline DONE",
}

func assertTrace(t *testing.T, got, want []string) {
	t.Helper()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("unexpected event order:\n got: %v\nwant: %v", got, want)
	}
}

func TestEager_ReportingOrder(t *testing.T) {
	h := newHarness(t)
	def := h.build(t, basicSpec("basic"))

	sub := h.submit(t, def, NameEager, map[string]any{"message": "hello"})

	assertTrace(t, h.rec.Trace(), successTrace)
	if got := h.runStatus(t, def, sub.RunID()); got != domain.StatusDone {
		t.Errorf("expected run DONE, got %s", got)
	}
	if sub.Runs[0].Status != domain.StatusDone {
		t.Errorf("eager handle should be DONE, got %s", sub.Runs[0].Status)
	}

	echoed, err := h.mem.GetValue(context.Background(), def.ID(), sub.RunID(), steps.EchoKey)
	if err != nil || echoed != "hello" {
		t.Errorf("expected echoed message, got %v (%v)", echoed, err)
	}
}

func TestDistributed_ReportingOrder(t *testing.T) {
	h := newHarness(t)
	def := h.build(t, basicSpec("basic"))

	sub := h.submit(t, def, NameDistributed, map[string]any{"message": "hello"})

	if sub.Runs[0].ChainID == "" {
		t.Error("distributed handle should carry chain id")
	}
	assertTrace(t, h.rec.Trace(), successTrace)
	if got := h.runStatus(t, def, sub.RunID()); got != domain.StatusDone {
		t.Errorf("expected run DONE, got %s", got)
	}
}

func TestEager_FailureCancelsRemaining(t *testing.T) {
	h := newHarness(t)
	def := h.build(t, chainSpec("abc", failID()))

	sub := h.submit(t, def, NameEager, nil)

	if got := h.statuses(t, def, sub.RunID()); got != "A=RUNTIME_ERROR,B=CANCELLED,C=CANCELLED" {
		t.Errorf("unexpected statuses: %s", got)
	}
	if got := h.runStatus(t, def, sub.RunID()); got != domain.StatusRuntimeError {
		t.Errorf("expected run RUNTIME_ERROR, got %s", got)
	}
	assertTrace(t, h.rec.Trace(), []string{
		"pipeline RUNNING",
		"A RUNNING",
		"A RUNTIME_ERROR",
		"B CANCELLED",
		"C CANCELLED",
		"pipeline RUNTIME_ERROR",
	})
}

func TestDistributed_FailureCancelsRemaining(t *testing.T) {
	h := newHarness(t)
	def := h.build(t, chainSpec("abc", failID()))

	sub := h.submit(t, def, NameDistributed, nil)

	if got := h.statuses(t, def, sub.RunID()); got != "A=RUNTIME_ERROR,B=CANCELLED,C=CANCELLED" {
		t.Errorf("unexpected statuses: %s", got)
	}
	if got := h.runStatus(t, def, sub.RunID()); got != domain.StatusRuntimeError {
		t.Errorf("expected run RUNTIME_ERROR, got %s", got)
	}

	run, _ := h.mem.GetRun(context.Background(), def.ID(), sub.RunID())
	if run.Message != MessagePipelineCancelled {
		t.Errorf("unexpected run message: %q", run.Message)
	}

	// Ошибка A уже отражена жизненным циклом: task.report не дублирует событие
	count := 0
	for _, line := range h.rec.Trace() {
		if line == "A RUNTIME_ERROR" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected one A RUNTIME_ERROR event, got %d", count)
	}
}

func TestEager_InputValidationError(t *testing.T) {
	h := newHarness(t)
	def := h.build(t, basicSpec("basic"))

	// message обязателен
	sub := h.submit(t, def, NameEager, nil)

	if got := h.statuses(t, def, sub.RunID()); got != "save=VALIDATION_ERROR,echo=CANCELLED" {
		t.Errorf("unexpected statuses: %s", got)
	}
	if got := h.runStatus(t, def, sub.RunID()); got != domain.StatusRuntimeError {
		t.Errorf("expected run RUNTIME_ERROR, got %s", got)
	}
	assertTrace(t, h.rec.Trace(), []string{
		"pipeline RUNNING",
		"save VALIDATION_ERROR",
		"echo CANCELLED",
		"pipeline RUNTIME_ERROR",
	})
}

func TestEagerDistributedEquivalence(t *testing.T) {
	specs := []struct {
		spec  pipeline.Spec
		input map[string]any
	}{
		{basicSpec("basic"), map[string]any{"message": "hi"}},
		{basicSpec("basic-invalid"), map[string]any{"message": 42}},
		{chainSpec("chain-ok", waitID()), nil},
		{chainSpec("chain-fail", failID()), nil},
		{
			// Ромб с падением в одной ветке
			pipeline.Spec{
				ID: "diamond",
				Tasks: []pipeline.TaskSpec{
					{Name: "root", Type: waitID()},
					{Name: "left", Type: failID(), Config: map[string]any{"parents": parents("root")}},
					{Name: "right", Type: waitID(), Config: map[string]any{"parents": parents("root")}},
					{Name: "join", Type: waitID(), Config: map[string]any{"parents": parents("left", "right")}},
				},
				Defaults: map[string]any{"wait": 0},
			},
			nil,
		},
	}

	for _, tc := range specs {
		h := newHarness(t)
		def := h.build(t, tc.spec)

		eager := h.submit(t, def, NameEager, tc.input)
		dist := h.submit(t, def, NameDistributed, tc.input)

		eagerStatuses := h.statuses(t, def, eager.RunID())
		distStatuses := h.statuses(t, def, dist.RunID())
		if eagerStatuses != distStatuses {
			t.Errorf("%s: eager %s != distributed %s", def.ID(), eagerStatuses, distStatuses)
		}
		if h.runStatus(t, def, eager.RunID()) != h.runStatus(t, def, dist.RunID()) {
			t.Errorf("%s: run statuses differ", def.ID())
		}
	}
}

// idle — раннер, который ничего не выполняет.
type idle struct{ err error }

func (idle) Name() string { return "idle" }

func (i idle) Start(_ context.Context, job *Job) (*Handle, error) {
	if i.err != nil {
		return nil, i.err
	}
	return &Handle{RunID: job.RunID, Runner: "idle", Status: domain.StatusPending}, nil
}

func TestSubmit_CompletionAggregation(t *testing.T) {
	h := newHarness(t)
	def := h.build(t, chainSpec("abc", waitID()))
	submitter := NewSubmitter(h.mem, nil, idle{})

	sub, err := submitter.Submit(context.Background(), def, "idle", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runID := sub.RunID()

	if got := h.statuses(t, def, runID); got != "A=PENDING,B=PENDING,C=PENDING" {
		t.Fatalf("expected PENDING results, got %s", got)
	}

	env := task.Env{Results: h.mem, Values: h.mem}
	ctx := context.Background()
	for i, tk := range def.Order() {
		if !tk.Start(ctx, def.ID(), runID, nil, env) {
			t.Fatalf("task %s failed", tk.Name())
		}

		// DONE только после последней задачи
		want := domain.StatusPending
		if i == len(def.Order())-1 {
			want = domain.StatusDone
		}
		if got := h.runStatus(t, def, runID); got != want {
			t.Errorf("after %s: expected run %s, got %s", tk.Name(), want, got)
		}
	}
}

func TestSubmit_Iterations(t *testing.T) {
	h := newHarness(t)
	spec := chainSpec("iter", waitID())
	spec.Iterations = []string{"0", "1"}
	def := h.build(t, spec)

	sub := h.submit(t, def, NameEager, nil)
	if len(sub.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(sub.Runs))
	}
	if sub.Runs[0].RunID == sub.Runs[1].RunID {
		t.Error("iterations should have distinct run ids")
	}

	for i, r := range sub.Runs {
		run, err := h.mem.GetRun(context.Background(), def.ID(), r.RunID)
		if err != nil {
			t.Fatalf("get run: %v", err)
		}
		if run.Status != domain.StatusDone {
			t.Errorf("run %d: expected DONE, got %s", i, run.Status)
		}
		if run.Iteration != spec.Iterations[i] || run.Runner != NameEager {
			t.Errorf("run %d: unexpected iteration/runner: %q/%q", i, run.Iteration, run.Runner)
		}
	}
}

func TestSubmit_UnknownRunner(t *testing.T) {
	h := newHarness(t)
	def := h.build(t, basicSpec("basic"))

	_, err := h.submitter.Submit(context.Background(), def, "celery", nil)
	if !errors.Is(err, ErrUnknownRunner) {
		t.Errorf("expected ErrUnknownRunner, got %v", err)
	}

	runs, _ := h.mem.ListRuns(context.Background(), store.RunFilter{})
	if len(runs) != 0 {
		t.Errorf("no run should be created, got %d", len(runs))
	}
}

func TestSubmit_StartFailure(t *testing.T) {
	h := newHarness(t)
	def := h.build(t, chainSpec("abc", waitID()))
	submitter := NewSubmitter(h.mem, nil, idle{err: errors.New("broker down")})

	sub, err := submitter.Submit(context.Background(), def, "idle", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(sub.Runs) != 0 {
		t.Errorf("failed run should not be reported as submitted")
	}

	runs, _ := h.mem.ListRuns(context.Background(), store.RunFilter{PipelineID: def.ID()})
	if len(runs) != 1 || runs[0].Status != domain.StatusRuntimeError {
		t.Fatalf("expected one RUNTIME_ERROR run, got %+v", runs)
	}
	if got := h.statuses(t, def, runs[0].RunID); got != "A=CANCELLED,B=CANCELLED,C=CANCELLED" {
		t.Errorf("unexpected statuses: %s", got)
	}
}

func TestDistributed_UnregisteredPipeline(t *testing.T) {
	h := newHarness(t)
	def, err := pipeline.Build(basicSpec("orphan"), h.tasks)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	_, err = h.dist.Start(context.Background(), &Job{Pipeline: def, RunID: "r"})
	if !errors.Is(err, pipeline.ErrPipelineNotFound) {
		t.Errorf("expected ErrPipelineNotFound, got %v", err)
	}
}

func TestDistributed_BuildChain(t *testing.T) {
	h := newHarness(t)
	def := h.build(t, chainSpec("abc", waitID()))

	chain := h.dist.BuildChain(&Job{Pipeline: def, RunID: "r", Iteration: "2"})

	kinds := make([]string, len(chain.Items))
	for i, it := range chain.Items {
		kinds[i] = it.Kind + ":" + it.Args.PipelineTask
	}
	want := "pipeline.report:,task.run:A,task.run:B,task.run:C,pipeline.report:"
	if got := strings.Join(kinds, ","); got != want {
		t.Errorf("unexpected chain:\n got: %s\nwant: %s", got, want)
	}

	for _, it := range chain.Items[1:4] {
		if it.OnError == nil || it.OnError.Kind != KindTaskReport {
			t.Errorf("task item %s should have task.report error handler", it.Args.PipelineTask)
		}
		if it.Args.Iteration != "2" {
			t.Errorf("iteration should be propagated, got %q", it.Args.Iteration)
		}
	}
	if chain.OnError == nil || chain.OnError.Kind != KindPipelineFail {
		t.Error("chain should have pipeline.fail error handler")
	}
}

// cancelAwareStore, как pgxpool, отказывает в записи по отменённому контексту.
type cancelAwareStore struct {
	*store.Memory
}

func (s cancelAwareStore) UpdateRunStatus(ctx context.Context, pipelineID, runID string, status domain.Status, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.UpdateRunStatus(ctx, pipelineID, runID, status, message)
}

func (s cancelAwareStore) SaveTaskResult(ctx context.Context, result *domain.TaskResult) (*domain.TaskResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Memory.SaveTaskResult(ctx, result)
}

func TestEager_CancelledContextStillFinishesRun(t *testing.T) {
	h := newHarness(t)
	def := h.build(t, pipeline.Spec{
		ID: "slow",
		Tasks: []pipeline.TaskSpec{
			{Name: "A", Type: waitID(), Config: map[string]any{"wait": 2}},
			{Name: "B", Type: waitID(), Config: map[string]any{"wait": 0, "parents": parents("A")}},
		},
	})

	st := cancelAwareStore{Memory: h.mem}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eager := NewEager(Config{Results: st, Values: st, Reporter: h.rec, Logger: logger})

	// Клиент уходит, пока A ещё ждёт
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)

	sub, err := NewSubmitter(st, logger, eager).Submit(ctx, def, NameEager, nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := sub.Runs[0].Status; got != domain.StatusRuntimeError {
		t.Errorf("expected handle RUNTIME_ERROR, got %s", got)
	}

	runID := sub.RunID()
	if got := h.runStatus(t, def, runID); got != domain.StatusRuntimeError {
		t.Errorf("run must not stay %s after the runner returned", got)
	}
	if got := h.statuses(t, def, runID); got != "A=RUNTIME_ERROR,B=CANCELLED" {
		t.Errorf("unexpected task statuses: %s", got)
	}
	assertTrace(t, h.rec.Trace(), []string{
		"pipeline RUNNING",
		"A RUNNING",
		"A RUNTIME_ERROR",
		"B CANCELLED",
		"pipeline RUNTIME_ERROR",
	})
}
