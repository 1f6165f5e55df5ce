package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewPipelineCmd создаёт группу команд для просмотра pipelines.
func NewPipelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Inspect registered pipelines",
	}

	cmd.AddCommand(
		newPipelineListCmd(clientFn, outputFn),
		newPipelineShowCmd(clientFn, outputFn),
	)

	return cmd
}

func newPipelineListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			pipelines, err := client.ListPipelines()
			if err != nil {
				return err
			}

			headers := []string{"ID", "TITLE", "TASKS", "ITERATIONS"}
			rows := make([][]string, len(pipelines))
			for i, p := range pipelines {
				rows[i] = []string{p.ID, p.Title, strconv.Itoa(len(p.Tasks)), strings.Join(p.Iterations, ",")}
			}

			out.Print(headers, rows, pipelines)
			return nil
		},
	}
}

func newPipelineShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show pipeline tasks in execution order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			p, err := client.GetPipeline(args[0])
			if err != nil {
				return err
			}

			byName := make(map[string]PipelineTaskResponse, len(p.Tasks))
			for _, t := range p.Tasks {
				byName[t.Name] = t
			}

			headers := []string{"#", "NAME", "TASK_ID", "PARENTS", "INPUT"}
			rows := make([][]string, 0, len(p.Order))
			for i, name := range p.Order {
				t := byName[name]
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					t.Name,
					t.TaskID,
					strings.Join(t.Parents, ","),
					strconv.FormatBool(t.HasInput),
				})
			}

			out.Print(headers, rows, p)
			return nil
		},
	}
}
