package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

const resultColumns = `pipeline_id, run_id, pipeline_task, task_id, status, config, input,
		       message, started_at, completed_at, updated_at`

// ResultRepo — репозиторий TaskResult.
type ResultRepo struct {
	pool *pgxpool.Pool
}

// NewResultRepo создаёт новый ResultRepo.
func NewResultRepo(pool *pgxpool.Pool) *ResultRepo {
	return &ResultRepo{pool: pool}
}

// Save делает upsert результата задачи.
//
// Строка run блокируется на время транзакции, поэтому параллельные
// сохранения задач одного run агрегируются последовательно: run
// становится DONE ровно один раз, когда последняя задача стала DONE.
// Возвращает сохранённый результат и run после агрегации.
func (r *ResultRepo) Save(ctx context.Context, result *domain.TaskResult) (*domain.TaskResult, *domain.PipelineRun, error) {
	var saved *domain.TaskResult
	var run *domain.PipelineRun

	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		run, err = getRun(ctx, tx, result.PipelineID, result.RunID, true)
		if err != nil {
			return err
		}

		update := *result
		update.UpdatedAt = time.Now()

		existing, err := getResult(ctx, tx, result.PipelineID, result.RunID, result.PipelineTask)
		switch {
		case errors.Is(err, ErrNotFound):
			saved = &update
		case err != nil:
			return err
		default:
			if !existing.Merge(&update) {
				return fmt.Errorf("%w: task %s: %s → %s",
					ErrInvalidTransition, result.PipelineTask, existing.Status, result.Status)
			}
			saved = existing
		}

		if err := upsertResult(ctx, tx, saved); err != nil {
			return err
		}

		if saved.Status != domain.StatusDone {
			return nil
		}
		incomplete, err := countIncomplete(ctx, tx, result.PipelineID, result.RunID)
		if err != nil {
			return err
		}
		if incomplete == 0 && run.Apply(domain.StatusDone, "Done", time.Now()) {
			return updateRun(ctx, tx, run)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return saved, run, nil
}

// List возвращает результаты задач run в порядке создания.
func (r *ResultRepo) List(ctx context.Context, pipelineID, runID string) ([]domain.TaskResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM task_results
		WHERE pipeline_id = $1 AND run_id = $2
		ORDER BY created_at ASC, pipeline_task ASC
	`
	rows, err := r.pool.Query(ctx, query, pipelineID, runID)
	if err != nil {
		return nil, fmt.Errorf("list task results: %w", err)
	}
	defer rows.Close()

	results := []domain.TaskResult{}
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, rows.Err()
}

// CountIncomplete возвращает количество задач run не в статусе DONE.
func (r *ResultRepo) CountIncomplete(ctx context.Context, pipelineID, runID string) (int, error) {
	return countIncomplete(ctx, r.pool, pipelineID, runID)
}

// --- Helpers ---

func getResult(ctx context.Context, q querier, pipelineID, runID, pipelineTask string) (*domain.TaskResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM task_results
		WHERE pipeline_id = $1 AND run_id = $2 AND pipeline_task = $3
		FOR UPDATE
	`
	result, err := scanResult(q.QueryRow(ctx, query, pipelineID, runID, pipelineTask))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return result, err
}

func upsertResult(ctx context.Context, q querier, result *domain.TaskResult) error {
	configJSON, err := marshalJSON(result.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	inputJSON, err := marshalJSON(result.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}

	query := `
		INSERT INTO task_results (pipeline_id, run_id, pipeline_task, task_id, status, config, input,
		                          message, started_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (pipeline_id, run_id, pipeline_task) DO UPDATE
		SET task_id = EXCLUDED.task_id, status = EXCLUDED.status, config = EXCLUDED.config,
		    input = EXCLUDED.input, message = EXCLUDED.message, started_at = EXCLUDED.started_at,
		    completed_at = EXCLUDED.completed_at, updated_at = EXCLUDED.updated_at
	`
	_, err = q.Exec(ctx, query,
		result.PipelineID,
		result.RunID,
		result.PipelineTask,
		result.TaskID,
		result.Status,
		configJSON,
		inputJSON,
		nullString(result.Message),
		result.StartedAt,
		result.CompletedAt,
		result.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert task result: %w", err)
	}
	return nil
}

func countIncomplete(ctx context.Context, q querier, pipelineID, runID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM task_results
		WHERE pipeline_id = $1 AND run_id = $2 AND status <> 'DONE'
	`
	var count int
	if err := q.QueryRow(ctx, query, pipelineID, runID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count incomplete tasks: %w", err)
	}
	return count, nil
}

// scanResult сканирует строку в TaskResult; pgx.ErrNoRows возвращается как есть.
func scanResult(row pgx.Row) (*domain.TaskResult, error) {
	var result domain.TaskResult
	var configJSON, inputJSON []byte
	var message *string

	err := row.Scan(
		&result.PipelineID,
		&result.RunID,
		&result.PipelineTask,
		&result.TaskID,
		&result.Status,
		&configJSON,
		&inputJSON,
		&message,
		&result.StartedAt,
		&result.CompletedAt,
		&result.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan task result: %w", err)
	}

	if err := unmarshalJSON(configJSON, &result.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := unmarshalJSON(inputJSON, &result.Input); err != nil {
		return nil, fmt.Errorf("unmarshal input: %w", err)
	}
	result.Message = deref(message)
	return &result, nil
}
