package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/store"
)

const runColumns = `pipeline_id, run_id, status, message, runner, iteration, input,
		       started_at, finished_at, created_at`

// RunRepo — репозиторий pipeline runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

// Create создаёт новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.PipelineRun) error {
	inputJSON, err := marshalJSON(run.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}

	status := run.Status
	if status == "" {
		status = domain.StatusPending
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO pipeline_runs (pipeline_id, run_id, status, message, runner, iteration, input, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		run.PipelineID,
		run.RunID,
		status,
		nullString(run.Message),
		run.Runner,
		nullString(run.Iteration),
		inputJSON,
		createdAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: run %s/%s", ErrAlreadyExists, run.PipelineID, run.RunID)
	}
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Get возвращает run по ключу.
func (r *RunRepo) Get(ctx context.Context, pipelineID, runID string) (*domain.PipelineRun, error) {
	return getRun(ctx, r.pool, pipelineID, runID, false)
}

// List возвращает runs по фильтру, новые первыми.
func (r *RunRepo) List(ctx context.Context, filter store.RunFilter) ([]domain.PipelineRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE ($1::text IS NULL OR pipeline_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}

	rows, err := r.pool.Query(ctx, query,
		nullString(filter.PipelineID),
		nullString(string(filter.Status)),
		limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.PipelineRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// UpdateStatus переводит run в новый статус и возвращает обновлённую запись.
func (r *RunRepo) UpdateStatus(ctx context.Context, pipelineID, runID string, status domain.Status, message string) (*domain.PipelineRun, error) {
	var updated *domain.PipelineRun
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		run, err := getRun(ctx, tx, pipelineID, runID, true)
		if err != nil {
			return err
		}
		if !run.Apply(status, message, time.Now()) {
			return fmt.Errorf("%w: run %s: %s → %s", ErrInvalidTransition, runID, run.Status, status)
		}
		updated = run
		return updateRun(ctx, tx, run)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// --- Helpers ---

func getRun(ctx context.Context, q querier, pipelineID, runID string, forUpdate bool) (*domain.PipelineRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM pipeline_runs
		WHERE pipeline_id = $1 AND run_id = $2
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	run, err := scanRun(q.QueryRow(ctx, query, pipelineID, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func updateRun(ctx context.Context, q querier, run *domain.PipelineRun) error {
	query := `
		UPDATE pipeline_runs
		SET status = $3, message = $4, started_at = $5, finished_at = $6
		WHERE pipeline_id = $1 AND run_id = $2
	`
	result, err := q.Exec(ctx, query,
		run.PipelineID,
		run.RunID,
		run.Status,
		nullString(run.Message),
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanRun сканирует строку в PipelineRun; pgx.ErrNoRows возвращается как есть.
func scanRun(row pgx.Row) (*domain.PipelineRun, error) {
	var run domain.PipelineRun
	var message, iteration *string
	var inputJSON []byte

	err := row.Scan(
		&run.PipelineID,
		&run.RunID,
		&run.Status,
		&message,
		&run.Runner,
		&iteration,
		&inputJSON,
		&run.StartedAt,
		&run.FinishedAt,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if err := unmarshalJSON(inputJSON, &run.Input); err != nil {
		return nil, fmt.Errorf("unmarshal input: %w", err)
	}
	run.Message = deref(message)
	run.Iteration = deref(iteration)
	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// marshalJSON возвращает nil для nil-map, чтобы в БД был NULL.
func marshalJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func unmarshalJSON(data []byte, target *map[string]any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
