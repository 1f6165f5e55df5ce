package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/shaiso/Conveyor/internal/task"
)

// Ошибки шаблонов.
var (
	// ErrTemplateParse — ошибка парсинга шаблона.
	ErrTemplateParse = errors.New("template parse error")

	// ErrTemplateRender — ошибка рендеринга шаблона.
	ErrTemplateRender = errors.New("template render error")
)

// TemplateData — данные run, доступные в шаблонах.
type TemplateData struct {
	PipelineID string
	RunID      string
	Iteration  string

	ctx  context.Context
	req  *task.Request
	seen map[string]any
}

// NewTemplateData собирает данные шаблона из запроса задачи.
func NewTemplateData(ctx context.Context, req *task.Request) *TemplateData {
	return &TemplateData{
		PipelineID: req.PipelineID,
		RunID:      req.RunID,
		Iteration:  req.Iteration,
		ctx:        ctx,
		req:        req,
		seen:       make(map[string]any),
	}
}

// value читает значение из хранилища run. Результаты кешируются
// на время рендера одной задачи.
func (d *TemplateData) value(key string) (any, error) {
	if v, ok := d.seen[key]; ok {
		return v, nil
	}
	if d.req == nil || d.req.Values == nil {
		return nil, fmt.Errorf("%w: %s", ErrValueMissing, key)
	}
	v, err := d.req.Values.GetValue(d.ctx, d.PipelineID, d.RunID, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrValueMissing, key, err)
	}
	d.seen[key] = v
	return v, nil
}

// templateFuncs — функции, не зависящие от run.
var templateFuncs = template.FuncMap{
	// json — сериализует значение в JSON строку
	"json": func(v any) string {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("error: %v", err)
		}
		return string(b)
	},

	// default — значение по умолчанию для пустого аргумента
	"default": func(def, val any) any {
		if val == nil {
			return def
		}
		if s, ok := val.(string); ok && s == "" {
			return def
		}
		return val
	},

	"env":   os.Getenv,
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
	"trim":  strings.TrimSpace,
}

// Render рендерит строковый шаблон.
// Строки без "{{" возвращаются как есть.
func Render(tmpl string, data *TemplateData) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}

	t, err := template.New("").
		Funcs(templateFuncs).
		Funcs(template.FuncMap{"value": data.value}).
		Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateParse, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTemplateRender, err)
	}
	return buf.String(), nil
}

// RenderValue рекурсивно рендерит строки внутри map и slice.
func RenderValue(value any, data *TemplateData) (any, error) {
	switch v := value.(type) {
	case string:
		return Render(v, data)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			rendered, err := RenderValue(val, data)
			if err != nil {
				return nil, err
			}
			result[key] = rendered
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			rendered, err := RenderValue(val, data)
			if err != nil {
				return nil, err
			}
			result[i] = rendered
		}
		return result, nil

	default:
		return value, nil
	}
}

// parseValue пытается распарсить отрендеренную строку как JSON.
// Если не получается — возвращает строку как есть.
func parseValue(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return value
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v
	}
	return value
}
