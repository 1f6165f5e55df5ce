package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
)

// LogRepo — журнал событий pipeline и задач.
type LogRepo struct {
	pool *pgxpool.Pool
}

// NewLogRepo создаёт новый LogRepo.
func NewLogRepo(pool *pgxpool.Pool) *LogRepo {
	return &LogRepo{pool: pool}
}

// AppendPipeline добавляет событие pipeline.
func (r *LogRepo) AppendPipeline(ctx context.Context, event domain.PipelineEvent) error {
	query := `
		INSERT INTO pipeline_logs (pipeline_id, run_id, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		event.PipelineID,
		event.RunID,
		event.Status,
		nullString(event.Message),
		timestamp(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert pipeline log: %w", err)
	}
	return nil
}

// AppendTask добавляет событие задачи.
func (r *LogRepo) AppendTask(ctx context.Context, event domain.TaskEvent) error {
	query := `
		INSERT INTO task_logs (pipeline_id, run_id, pipeline_task, task_id, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		event.PipelineID,
		event.RunID,
		event.PipelineTask,
		event.TaskID,
		event.Status,
		nullString(event.Message),
		timestamp(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert task log: %w", err)
	}
	return nil
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
