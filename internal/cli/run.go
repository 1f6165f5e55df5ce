package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunStartCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunTasksCmd(clientFn, outputFn),
		newRunWatchCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListRunsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(opts)
			if err != nil {
				return err
			}

			headers := []string{"PIPELINE_ID", "RUN_ID", "RUNNER", "ITERATION", "STATUS", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.PipelineID, r.RunID, r.Runner, r.Iteration, r.Status, r.CreatedAt}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.PipelineID, "pipeline-id", "", "Filter by pipeline ID")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (PENDING, RUNNING, DONE, RUNTIME_ERROR, VALIDATION_ERROR, CANCELLED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newRunStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var runnerName string
	var inputs []string
	var inputJSON string
	var watch bool

	cmd := &cobra.Command{
		Use:   "start PIPELINE_ID",
		Short: "Start a pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			input, err := parseInput(inputs, inputJSON)
			if err != nil {
				return err
			}

			sub, err := client.CreateRun(args[0], CreateRunRequest{Runner: runnerName, Input: input})
			if err != nil {
				return err
			}

			for _, r := range sub.Runs {
				out.Success(fmt.Sprintf("Run started: %s", r.RunID))
			}

			headers := []string{"RUN_ID", "RUNNER", "ITERATION", "CHAIN_ID", "STATUS"}
			rows := make([][]string, len(sub.Runs))
			for i, r := range sub.Runs {
				rows[i] = []string{r.RunID, sub.Runner, r.Iteration, r.ChainID, r.Status}
			}
			out.Print(headers, rows, sub)

			if !watch {
				return nil
			}
			for _, r := range sub.Runs {
				if err := watchRun(cmd, client, out, sub.PipelineID, r.RunID); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runnerName, "runner", "", "Runner strategy: eager or distributed (server default if empty)")
	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&inputJSON, "input-json", "", "Input as a JSON object")
	cmd.Flags().BoolVar(&watch, "watch", false, "Stream events until the run finishes")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show PIPELINE_ID RUN_ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0], args[1])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"PIPELINE_ID", "RUN_ID", "RUNNER", "STATUS", "MESSAGE", "DURATION_MS", "CREATED"},
				[][]string{{run.PipelineID, run.RunID, run.Runner, run.Status, run.Message, strconv.FormatInt(run.DurationMs, 10), run.CreatedAt}},
				run,
			)
			return nil
		},
	}
}

func newRunTasksCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks PIPELINE_ID RUN_ID",
		Short: "List task results of a run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			tasks, err := client.ListTasks(args[0], args[1])
			if err != nil {
				return err
			}

			out.Print(taskHeaders, taskRows(tasks), tasks)
			return nil
		},
	}
}

func newRunWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch PIPELINE_ID RUN_ID",
		Short: "Stream run events until the run finishes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchRun(cmd, clientFn(), outputFn(), args[0], args[1])
		},
	}
}

// watchRun печатает события run по одному, пока run не завершится.
func watchRun(cmd *cobra.Command, client *Client, out *Output, pipelineID, runID string) error {
	return client.WatchRun(cmd.Context(), pipelineID, runID, func(ev EventResponse) error {
		if out.JSONMode() {
			out.JSON(ev)
		} else {
			out.Line(formatEvent(ev))
		}
		if ev.Type == "pipeline" && isTerminal(ev.Status) {
			return errStopWatch
		}
		return nil
	})
}

func formatEvent(ev EventResponse) string {
	subject := "pipeline " + ev.PipelineID
	if ev.Type == "task" {
		subject = "task " + ev.PipelineTask
	}
	line := fmt.Sprintf("%s  %-20s %s", ev.Timestamp, subject, ev.Status)
	if ev.Message != "" {
		line += "  " + ev.Message
	}
	return line
}

func isTerminal(status string) bool {
	switch status {
	case "DONE", "RUNTIME_ERROR", "VALIDATION_ERROR", "CANCELLED":
		return true
	}
	return false
}

var taskHeaders = []string{"PIPELINE_TASK", "TASK_ID", "STATUS", "DURATION_MS", "MESSAGE"}

func taskRows(tasks []TaskResultResponse) [][]string {
	rows := make([][]string, len(tasks))
	for i, t := range tasks {
		rows[i] = []string{t.PipelineTask, t.TaskID, t.Status, strconv.FormatInt(t.DurationMs, 10), t.Message}
	}
	return rows
}

// parseInput собирает вход pipeline из --input-json и пар KEY=VALUE.
// Пары перекрывают ключи JSON.
func parseInput(pairs []string, rawJSON string) (map[string]any, error) {
	var input map[string]any
	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &input); err != nil {
			return nil, fmt.Errorf("invalid --input-json: %w", err)
		}
	}

	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}
		if input == nil {
			input = make(map[string]any)
		}
		input[parts[0]] = parts[1]
	}
	return input, nil
}
