package repo

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/store"
)

// DefaultCacheSize — размер кэша завершённых runs по умолчанию.
const DefaultCacheSize = 1024

var _ store.Store = (*Store)(nil)

// Store — store.Store поверх Postgres.
//
// Завершённые runs не меняются, поэтому GetRun отдаёт их из LRU-кэша.
// Незавершённые runs всегда читаются из БД.
type Store struct {
	runs    *RunRepo
	results *ResultRepo
	logs    *LogRepo
	values  *ValueRepo

	finished *lru.Cache[string, domain.PipelineRun]
}

// NewStore создаёт Store. cacheSize <= 0 — DefaultCacheSize.
func NewStore(pool *pgxpool.Pool, cacheSize int) (*Store, error) {
	s, err := newStore(cacheSize)
	if err != nil {
		return nil, err
	}
	s.runs = NewRunRepo(pool)
	s.results = NewResultRepo(pool)
	s.logs = NewLogRepo(pool)
	s.values = NewValueRepo(pool)
	return s, nil
}

func newStore(cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, domain.PipelineRun](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create run cache: %w", err)
	}
	return &Store{finished: cache}, nil
}

// CreateRun реализует store.ResultStore.
func (s *Store) CreateRun(ctx context.Context, run *domain.PipelineRun) error {
	return s.runs.Create(ctx, run)
}

// GetRun реализует store.ResultStore.
func (s *Store) GetRun(ctx context.Context, pipelineID, runID string) (*domain.PipelineRun, error) {
	if run, ok := s.finished.Get(cacheKey(pipelineID, runID)); ok {
		return &run, nil
	}

	run, err := s.runs.Get(ctx, pipelineID, runID)
	if err != nil {
		return nil, err
	}
	s.remember(run)
	return run, nil
}

// ListRuns реализует store.ResultStore.
func (s *Store) ListRuns(ctx context.Context, filter store.RunFilter) ([]domain.PipelineRun, error) {
	return s.runs.List(ctx, filter)
}

// UpdateRunStatus реализует store.ResultStore.
func (s *Store) UpdateRunStatus(ctx context.Context, pipelineID, runID string, status domain.Status, message string) error {
	run, err := s.runs.UpdateStatus(ctx, pipelineID, runID, status, message)
	if err != nil {
		return err
	}
	s.remember(run)
	return nil
}

// SaveTaskResult реализует store.ResultStore.
func (s *Store) SaveTaskResult(ctx context.Context, result *domain.TaskResult) (*domain.TaskResult, error) {
	saved, run, err := s.results.Save(ctx, result)
	if err != nil {
		return nil, err
	}
	s.remember(run)
	return saved, nil
}

// ListTaskResults реализует store.ResultStore.
func (s *Store) ListTaskResults(ctx context.Context, pipelineID, runID string) ([]domain.TaskResult, error) {
	return s.results.List(ctx, pipelineID, runID)
}

// CountIncomplete реализует store.ResultStore.
func (s *Store) CountIncomplete(ctx context.Context, pipelineID, runID string) (int, error) {
	return s.results.CountIncomplete(ctx, pipelineID, runID)
}

// AppendPipelineLog реализует store.LogStore.
func (s *Store) AppendPipelineLog(ctx context.Context, event domain.PipelineEvent) error {
	return s.logs.AppendPipeline(ctx, event)
}

// AppendTaskLog реализует store.LogStore.
func (s *Store) AppendTaskLog(ctx context.Context, event domain.TaskEvent) error {
	return s.logs.AppendTask(ctx, event)
}

// PutValue реализует store.ValueStore.
func (s *Store) PutValue(ctx context.Context, pipelineID, runID, key string, value any) error {
	return s.values.Put(ctx, pipelineID, runID, key, value)
}

// GetValue реализует store.ValueStore.
func (s *Store) GetValue(ctx context.Context, pipelineID, runID, key string) (any, error) {
	return s.values.Get(ctx, pipelineID, runID, key)
}

// remember кэширует run, если он завершён.
func (s *Store) remember(run *domain.PipelineRun) {
	if run == nil || !run.IsFinished() {
		return
	}
	s.finished.Add(cacheKey(run.PipelineID, run.RunID), *run)
}

func cacheKey(pipelineID, runID string) string {
	return pipelineID + "/" + runID
}
