package cli

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/catalog"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/reporter"
	"github.com/shaiso/Conveyor/internal/runner"
	"github.com/shaiso/Conveyor/internal/steps"
	"github.com/shaiso/Conveyor/internal/store"
	"github.com/shaiso/Conveyor/internal/task"
)

// ExecResult — итог локального запуска одного run.
type ExecResult struct {
	PipelineID string              `json:"pipeline_id"`
	RunID      string              `json:"run_id"`
	Iteration  string              `json:"iteration,omitempty"`
	Status     domain.Status       `json:"status"`
	Message    string              `json:"message,omitempty"`
	Tasks      []domain.TaskResult `json:"tasks"`
}

// NewExecCmd создаёт команду локального запуска встроенного pipeline.
//
// В отличие от остальных команд exec не обращается к API: pipeline
// выполняется стратегией eager в памяти процесса.
func NewExecCmd(loggerFn func() *slog.Logger, outputFn func() *Output) *cobra.Command {
	var inputs []string
	var inputJSON string
	var wait int

	cmd := &cobra.Command{
		Use:   "exec PIPELINE_ID",
		Short: "Run a built-in pipeline in-process with the eager runner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			input, err := parseInput(inputs, inputJSON)
			if err != nil {
				return err
			}

			var waitOverride *int
			if cmd.Flags().Changed("wait") {
				waitOverride = &wait
			}

			results, err := Exec(cmd.Context(), loggerFn(), args[0], input, waitOverride)
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(results)
				return nil
			}
			for _, res := range results {
				line := fmt.Sprintf("Run %s: %s", res.RunID, res.Status)
				if res.Iteration != "" {
					line = fmt.Sprintf("Run %s (iteration %s): %s", res.RunID, res.Iteration, res.Status)
				}
				out.Success(line)

				rows := make([][]string, len(res.Tasks))
				for i, t := range res.Tasks {
					rows[i] = []string{t.PipelineTask, t.TaskID, string(t.Status), fmt.Sprintf("%d", t.Duration().Milliseconds()), t.Message}
				}
				out.Table(taskHeaders, rows)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&inputJSON, "input-json", "", "Input as a JSON object")
	cmd.Flags().IntVar(&wait, "wait", 0, "Override the default wait (seconds) of the pipeline tasks")

	return cmd
}

// Exec выполняет встроенный pipeline в памяти и возвращает итог
// каждого созданного run.
func Exec(ctx context.Context, logger *slog.Logger, pipelineID string, input map[string]any, wait *int) ([]ExecResult, error) {
	spec, err := catalog.Spec(pipelineID)
	if err != nil {
		return nil, err
	}
	if wait != nil {
		defaults := maps.Clone(spec.Defaults)
		if defaults == nil {
			defaults = make(map[string]any, 1)
		}
		defaults["wait"] = *wait
		spec.Defaults = defaults
	}

	tasks := task.NewRegistry()
	if _, err := steps.Register(tasks); err != nil {
		return nil, err
	}
	tasks.Seal()

	def, err := pipeline.Build(spec, tasks)
	if err != nil {
		return nil, err
	}

	mem := store.NewMemory()
	eager := runner.NewEager(runner.Config{
		Results:  mem,
		Values:   mem,
		Reporter: reporter.Multi{reporter.NewLog(logger), reporter.NewStore(mem, logger)},
		Logger:   logger,
	})

	sub, err := runner.NewSubmitter(mem, logger, eager).Submit(ctx, def, runner.NameEager, input)
	if err != nil {
		return nil, err
	}

	results := make([]ExecResult, 0, len(sub.Runs))
	for _, r := range sub.Runs {
		run, err := mem.GetRun(ctx, def.ID(), r.RunID)
		if err != nil {
			return nil, err
		}
		taskResults, err := mem.ListTaskResults(ctx, def.ID(), r.RunID)
		if err != nil {
			return nil, err
		}
		results = append(results, ExecResult{
			PipelineID: def.ID(),
			RunID:      r.RunID,
			Iteration:  r.Iteration,
			Status:     run.Status,
			Message:    run.Message,
			Tasks:      taskResults,
		})
	}
	return results, nil
}
