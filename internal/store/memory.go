package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Memory — потокобезопасное хранилище в памяти.
//
// Используется в тестах, CLI-команде exec и везде, где Postgres
// не нужен. Все операции атомарны относительно друг друга, поэтому
// проверка "все задачи DONE" не гоняется с параллельными обновлениями.
type Memory struct {
	mu      sync.RWMutex
	runs    map[runKey]*domain.PipelineRun
	results map[runKey][]*domain.TaskResult
	values  map[string]any

	pipelineLogs []domain.PipelineEvent
	taskLogs     []domain.TaskEvent

	now func() time.Time
}

type runKey struct {
	pipelineID string
	runID      string
}

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{
		runs:    make(map[runKey]*domain.PipelineRun),
		results: make(map[runKey][]*domain.TaskResult),
		values:  make(map[string]any),
		now:     time.Now,
	}
}

// CreateRun создаёт запись run.
func (m *Memory) CreateRun(_ context.Context, run *domain.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runKey{run.PipelineID, run.RunID}
	if _, exists := m.runs[key]; exists {
		return fmt.Errorf("%w: run %s/%s", ErrAlreadyExists, run.PipelineID, run.RunID)
	}

	cp := *run
	if cp.Status == "" {
		cp.Status = domain.StatusPending
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.now()
	}
	m.runs[key] = &cp
	return nil
}

// GetRun возвращает копию run.
func (m *Memory) GetRun(_ context.Context, pipelineID, runID string) (*domain.PipelineRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runKey{pipelineID, runID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	return &cp, nil
}

// ListRuns возвращает runs по фильтру, новые первыми.
func (m *Memory) ListRuns(_ context.Context, filter RunFilter) ([]domain.PipelineRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]domain.PipelineRun, 0, len(m.runs))
	for _, run := range m.runs {
		if filter.PipelineID != "" && run.PipelineID != filter.PipelineID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		runs = append(runs, *run)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(runs) {
			return []domain.PipelineRun{}, nil
		}
		runs = runs[filter.Offset:]
	}
	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}
	return runs, nil
}

// UpdateRunStatus переводит run в новый статус.
func (m *Memory) UpdateRunStatus(_ context.Context, pipelineID, runID string, status domain.Status, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runKey{pipelineID, runID}]
	if !ok {
		return ErrNotFound
	}
	if !run.Apply(status, message, m.now()) {
		return fmt.Errorf("%w: run %s: %s → %s", ErrInvalidTransition, runID, run.Status, status)
	}
	return nil
}

// SaveTaskResult делает upsert результата задачи.
//
// Если результат стал DONE и незавершённых задач не осталось,
// run переводится в DONE в той же критической секции.
func (m *Memory) SaveTaskResult(_ context.Context, result *domain.TaskResult) (*domain.TaskResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runKey{result.PipelineID, result.RunID}
	update := *result
	update.UpdatedAt = m.now()

	var saved *domain.TaskResult
	for _, existing := range m.results[key] {
		if existing.PipelineTask == result.PipelineTask {
			if !existing.Merge(&update) {
				return nil, fmt.Errorf("%w: task %s: %s → %s",
					ErrInvalidTransition, result.PipelineTask, existing.Status, result.Status)
			}
			saved = existing
			break
		}
	}
	if saved == nil {
		saved = &update
		m.results[key] = append(m.results[key], saved)
	}

	if saved.Status == domain.StatusDone && m.countIncompleteLocked(key) == 0 {
		if run, ok := m.runs[key]; ok {
			run.Apply(domain.StatusDone, "Done", m.now())
		}
	}

	cp := *saved
	return &cp, nil
}

// ListTaskResults возвращает результаты задач run в порядке создания.
func (m *Memory) ListTaskResults(_ context.Context, pipelineID, runID string) ([]domain.TaskResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.results[runKey{pipelineID, runID}]
	out := make([]domain.TaskResult, len(stored))
	for i, r := range stored {
		out[i] = *r
	}
	return out, nil
}

// CountIncomplete возвращает количество задач не в статусе DONE.
func (m *Memory) CountIncomplete(_ context.Context, pipelineID, runID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countIncompleteLocked(runKey{pipelineID, runID}), nil
}

func (m *Memory) countIncompleteLocked(key runKey) int {
	count := 0
	for _, r := range m.results[key] {
		if r.Status != domain.StatusDone {
			count++
		}
	}
	return count
}

// AppendPipelineLog добавляет событие pipeline в журнал.
func (m *Memory) AppendPipelineLog(_ context.Context, event domain.PipelineEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelineLogs = append(m.pipelineLogs, event)
	return nil
}

// AppendTaskLog добавляет событие задачи в журнал.
func (m *Memory) AppendTaskLog(_ context.Context, event domain.TaskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskLogs = append(m.taskLogs, event)
	return nil
}

// PipelineLogs возвращает копию журнала событий pipeline.
func (m *Memory) PipelineLogs() []domain.PipelineEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.PipelineEvent(nil), m.pipelineLogs...)
}

// TaskLogs возвращает копию журнала событий задач.
func (m *Memory) TaskLogs() []domain.TaskEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.TaskEvent(nil), m.taskLogs...)
}

// PutValue сохраняет значение.
func (m *Memory) PutValue(_ context.Context, pipelineID, runID, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[valueKey(pipelineID, runID, key)] = value
	return nil
}

// GetValue возвращает значение или ErrNotFound.
func (m *Memory) GetValue(_ context.Context, pipelineID, runID, key string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[valueKey(pipelineID, runID, key)]
	if !ok {
		return nil, fmt.Errorf("%w: value %q", ErrNotFound, key)
	}
	return v, nil
}

func valueKey(pipelineID, runID, key string) string {
	return pipelineID + "/" + runID + "/" + key
}
