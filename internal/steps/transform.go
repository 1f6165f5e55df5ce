package steps

import (
	"context"
	"fmt"
	"sort"

	"github.com/shaiso/Conveyor/internal/task"
)

// TransformConfig — конфигурация Transform.
type TransformConfig struct {
	task.BaseConfig

	// Mappings — ключ в хранилище run → шаблон значения.
	Mappings map[string]string `json:"mappings" validate:"required,min=1"`
}

// Transform рендерит шаблоны и сохраняет результаты в хранилище run.
//
// Конфигурация:
//
//	{
//	    "mappings": {
//	        "greeting": "Hello, {{ value \"message\" }}!",
//	        "attempt": "{{ .Iteration }}"
//	    }
//	}
//
// Результат, являющийся валидным JSON (число, объект, массив),
// сохраняется распарсенным.
type Transform struct{}

// Title реализует task.Titled.
func (Transform) Title() string { return "Transform values" }

// NewConfig реализует task.Implementation.
func (Transform) NewConfig() task.Config { return &TransformConfig{} }

// NewInput реализует task.Implementation.
func (Transform) NewInput() any { return nil }

// Run реализует task.Implementation.
func (Transform) Run(ctx context.Context, req *task.Request) error {
	cfg := req.Config.(*TransformConfig)
	data := NewTemplateData(ctx, req)

	// Детерминированный порядок записи
	keys := make([]string, 0, len(cfg.Mappings))
	for key := range cfg.Mappings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrStepCancelled, err)
		}

		rendered, err := Render(cfg.Mappings[key], data)
		if err != nil {
			return fmt.Errorf("transform %s: %w", key, err)
		}
		if err := req.Values.PutValue(ctx, req.PipelineID, req.RunID, key, parseValue(rendered)); err != nil {
			return fmt.Errorf("store %s: %w", key, err)
		}
	}
	return nil
}
