package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ValueRepo — значения, которыми задачи обмениваются внутри run.
type ValueRepo struct {
	pool *pgxpool.Pool
}

// NewValueRepo создаёт новый ValueRepo.
func NewValueRepo(pool *pgxpool.Pool) *ValueRepo {
	return &ValueRepo{pool: pool}
}

// Put сохраняет значение (JSON).
func (r *ValueRepo) Put(ctx context.Context, pipelineID, runID, key string, value any) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value %q: %w", key, err)
	}

	query := `
		INSERT INTO run_values (pipeline_id, run_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (pipeline_id, run_id, key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.pool.Exec(ctx, query, pipelineID, runID, key, valueJSON); err != nil {
		return fmt.Errorf("upsert value %q: %w", key, err)
	}
	return nil
}

// Get возвращает значение или ErrNotFound.
func (r *ValueRepo) Get(ctx context.Context, pipelineID, runID, key string) (any, error) {
	query := `
		SELECT value
		FROM run_values
		WHERE pipeline_id = $1 AND run_id = $2 AND key = $3
	`
	var valueJSON []byte
	err := r.pool.QueryRow(ctx, query, pipelineID, runID, key).Scan(&valueJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: value %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get value %q: %w", key, err)
	}

	var value any
	if err := json.Unmarshal(valueJSON, &value); err != nil {
		return nil, fmt.Errorf("unmarshal value %q: %w", key, err)
	}
	return value, nil
}
