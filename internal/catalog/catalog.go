// Package catalog содержит встроенные pipeline, доступные всем
// процессам Conveyor.
//
// API, worker и scheduler должны регистрировать один и тот же набор:
// распределённые обработчики находят pipeline по id.
package catalog

import (
	"fmt"

	"github.com/shaiso/Conveyor/internal/pipeline"
	"github.com/shaiso/Conveyor/internal/steps"
	"github.com/shaiso/Conveyor/internal/task"
)

// Идентификаторы встроенных pipeline.
const (
	Basic    = "basic"
	Iterator = "iterator"
	Failing  = "failing"
)

// Specs возвращает описания встроенных pipeline.
func Specs() []pipeline.Spec {
	return []pipeline.Spec{
		{
			ID:    Basic,
			Title: "Save and echo a message",
			Tasks: []pipeline.TaskSpec{
				{Name: "save_message", Type: steps.ID(steps.SaveMessage{})},
				{
					Name:   "echo_message",
					Type:   steps.ID(steps.EchoMessage{}),
					Config: map[string]any{"parents": []any{"save_message"}},
				},
			},
			Defaults: map[string]any{"wait": 1},
		},
		{
			ID:         Iterator,
			Title:      "Iterated wait",
			Tasks:      []pipeline.TaskSpec{{Name: "first", Type: steps.ID(steps.Wait{})}},
			Defaults:   map[string]any{"wait": 1},
			Iterations: []string{"0", "1"},
		},
		{
			ID:    Failing,
			Title: "Failure with cancellation",
			Tasks: []pipeline.TaskSpec{
				{Name: "prepare", Type: steps.ID(steps.Wait{}), Config: map[string]any{"wait": 0}},
				{
					Name:   "explode",
					Type:   steps.ID(steps.Fail{}),
					Config: map[string]any{"parents": []any{"prepare"}, "message": "boom"},
				},
				{
					Name:   "cleanup",
					Type:   steps.ID(steps.Wait{}),
					Config: map[string]any{"parents": []any{"explode"}, "wait": 0},
				},
			},
		},
	}
}

// Spec возвращает описание встроенного pipeline по id.
func Spec(id string) (pipeline.Spec, error) {
	for _, spec := range Specs() {
		if spec.ID == id {
			return spec, nil
		}
	}
	return pipeline.Spec{}, fmt.Errorf("%w: %s", pipeline.ErrPipelineNotFound, id)
}

// Register регистрирует встроенные задачи и pipeline.
func Register(tasks *task.Registry, pipelines *pipeline.Registry) error {
	if _, err := steps.Register(tasks); err != nil {
		return err
	}

	for _, spec := range Specs() {
		def, err := pipeline.Build(spec, tasks)
		if err != nil {
			return fmt.Errorf("build pipeline %s: %w", spec.ID, err)
		}
		if err := pipelines.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// New создаёт реестры с встроенным каталогом и запечатывает реестр задач.
func New() (*task.Registry, *pipeline.Registry, error) {
	tasks := task.NewRegistry()
	pipelines := pipeline.NewRegistry()
	if err := Register(tasks, pipelines); err != nil {
		return nil, nil, err
	}
	tasks.Seal()
	return tasks, pipelines, nil
}
