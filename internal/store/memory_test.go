package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

func seedRun(t *testing.T, m *Memory, runID string, tasks ...string) {
	t.Helper()
	ctx := context.Background()

	if err := m.CreateRun(ctx, &domain.PipelineRun{PipelineID: "p", RunID: runID}); err != nil {
		t.Fatalf("create run: %v", err)
	}
	for _, name := range tasks {
		_, err := m.SaveTaskResult(ctx, &domain.TaskResult{
			PipelineID: "p", PipelineTask: name, RunID: runID, Status: domain.StatusPending,
		})
		if err != nil {
			t.Fatalf("seed task %s: %v", name, err)
		}
	}
}

func save(m *Memory, runID, name string, status domain.Status) error {
	_, err := m.SaveTaskResult(context.Background(), &domain.TaskResult{
		PipelineID: "p", PipelineTask: name, RunID: runID, Status: status,
	})
	return err
}

func TestMemory_CreateRun(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seedRun(t, m, "r1")

	run, err := m.GetRun(ctx, "p", "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.Status != domain.StatusPending {
		t.Errorf("expected PENDING, got %s", run.Status)
	}
	if run.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	err = m.CreateRun(ctx, &domain.PipelineRun{PipelineID: "p", RunID: "r1"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	if _, err := m.GetRun(ctx, "p", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_RunCompletesWhenAllTasksDone(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedRun(t, m, "r1", "a", "b")

	for _, step := range []struct {
		task   string
		status domain.Status
	}{
		{"a", domain.StatusRunning},
		{"a", domain.StatusDone},
		{"b", domain.StatusRunning},
	} {
		if err := save(m, "r1", step.task, step.status); err != nil {
			t.Fatalf("save %s %s: %v", step.task, step.status, err)
		}
		run, _ := m.GetRun(ctx, "p", "r1")
		if run.Status == domain.StatusDone {
			t.Fatalf("run became DONE too early (after %s %s)", step.task, step.status)
		}
	}

	if err := save(m, "r1", "b", domain.StatusDone); err != nil {
		t.Fatalf("save: %v", err)
	}
	run, _ := m.GetRun(ctx, "p", "r1")
	if run.Status != domain.StatusDone {
		t.Errorf("expected run DONE, got %s", run.Status)
	}
	if run.FinishedAt == nil {
		t.Error("FinishedAt should be set")
	}

	n, _ := m.CountIncomplete(ctx, "p", "r1")
	if n != 0 {
		t.Errorf("expected 0 incomplete, got %d", n)
	}
}

func TestMemory_FailedRunStaysFailed(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedRun(t, m, "r1", "a")

	if err := m.UpdateRunStatus(ctx, "p", "r1", domain.StatusValidationError, "bad input"); err != nil {
		t.Fatalf("update: %v", err)
	}
	run, _ := m.GetRun(ctx, "p", "r1")
	if run.Status != domain.StatusRuntimeError {
		t.Errorf("validation error should map to RUNTIME_ERROR, got %s", run.Status)
	}

	err := m.UpdateRunStatus(ctx, "p", "r1", domain.StatusDone, "Done")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	// Последняя задача DONE не возвращает run из RUNTIME_ERROR
	_ = save(m, "r1", "a", domain.StatusRunning)
	_ = save(m, "r1", "a", domain.StatusDone)
	run, _ = m.GetRun(ctx, "p", "r1")
	if run.Status != domain.StatusRuntimeError {
		t.Errorf("expected RUNTIME_ERROR, got %s", run.Status)
	}
}

func TestMemory_SaveTaskResultTransitions(t *testing.T) {
	m := NewMemory()
	seedRun(t, m, "r1", "a")

	if err := save(m, "r1", "a", domain.StatusDone); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("PENDING → DONE: expected ErrInvalidTransition, got %v", err)
	}
	if err := save(m, "r1", "a", domain.StatusCancelled); err != nil {
		t.Fatalf("PENDING → CANCELLED: %v", err)
	}
	if err := save(m, "r1", "a", domain.StatusRunning); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("CANCELLED → RUNNING: expected ErrInvalidTransition, got %v", err)
	}

	results, _ := m.ListTaskResults(context.Background(), "p", "r1")
	if len(results) != 1 || results[0].Status != domain.StatusCancelled {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestMemory_SaveTaskResultMergesFields(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedRun(t, m, "r1")

	started := time.Now()
	_, err := m.SaveTaskResult(ctx, &domain.TaskResult{
		PipelineID: "p", PipelineTask: "a", TaskID: "steps.Wait", RunID: "r1",
		Status: domain.StatusRunning, StartedAt: &started,
		Config: map[string]any{"wait": 1},
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	saved, err := m.SaveTaskResult(ctx, &domain.TaskResult{
		PipelineID: "p", PipelineTask: "a", RunID: "r1", Status: domain.StatusDone,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.TaskID != "steps.Wait" || saved.StartedAt == nil || saved.Config["wait"] != 1 {
		t.Errorf("fields should survive partial update: %+v", saved)
	}
}

func TestMemory_ListRunsFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		_ = m.CreateRun(ctx, &domain.PipelineRun{
			PipelineID: "p", RunID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	_ = m.CreateRun(ctx, &domain.PipelineRun{PipelineID: "other", RunID: "x", CreatedAt: base})
	_ = m.UpdateRunStatus(ctx, "p", "r2", domain.StatusRunning, "Running")

	runs, _ := m.ListRuns(ctx, RunFilter{PipelineID: "p"})
	if len(runs) != 3 || runs[0].RunID != "r3" {
		t.Errorf("expected newest first, got %+v", runs)
	}

	runs, _ = m.ListRuns(ctx, RunFilter{Status: domain.StatusRunning})
	if len(runs) != 1 || runs[0].RunID != "r2" {
		t.Errorf("unexpected status filter result: %+v", runs)
	}

	runs, _ = m.ListRuns(ctx, RunFilter{PipelineID: "p", Limit: 1, Offset: 1})
	if len(runs) != 1 || runs[0].RunID != "r2" {
		t.Errorf("unexpected page: %+v", runs)
	}

	runs, _ = m.ListRuns(ctx, RunFilter{Offset: 10})
	if len(runs) != 0 {
		t.Errorf("expected empty page, got %d", len(runs))
	}
}

func TestMemory_Values(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.GetValue(ctx, "p", "r1", "message"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_ = m.PutValue(ctx, "p", "r1", "message", "hello")
	v, err := m.GetValue(ctx, "p", "r1", "message")
	if err != nil || v != "hello" {
		t.Errorf("expected hello, got %v (%v)", v, err)
	}

	// Значения изолированы по run
	if _, err := m.GetValue(ctx, "p", "r2", "message"); !errors.Is(err, ErrNotFound) {
		t.Errorf("values should be scoped to run, got %v", err)
	}
}

func TestMemory_Logs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_ = m.AppendPipelineLog(ctx, domain.PipelineEvent{PipelineID: "p", RunID: "r1", Status: domain.StatusRunning})
	_ = m.AppendTaskLog(ctx, domain.TaskEvent{PipelineID: "p", RunID: "r1", PipelineTask: "a", Status: domain.StatusDone})

	if got := m.PipelineLogs(); len(got) != 1 || got[0].Status != domain.StatusRunning {
		t.Errorf("unexpected pipeline logs: %+v", got)
	}
	if got := m.TaskLogs(); len(got) != 1 || got[0].PipelineTask != "a" {
		t.Errorf("unexpected task logs: %+v", got)
	}
}
