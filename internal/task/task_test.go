package task

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/reporter"
	"github.com/shaiso/Conveyor/internal/store"
)

type greetConfig struct {
	BaseConfig
	Greeting string `json:"greeting" validate:"required"`
	Repeat   int    `json:"repeat,omitempty" validate:"gte=0,lte=10"`
}

type greetInput struct {
	Name string `json:"name"`
}

// greet — тестовая реализация с config и input.
type greet struct {
	err   error
	panic bool
}

func (greet) NewConfig() Config { return &greetConfig{} }
func (greet) NewInput() any     { return &greetInput{} }

func (g greet) Run(ctx context.Context, req *Request) error {
	if g.panic {
		panic("boom")
	}
	if g.err != nil {
		return g.err
	}
	cfg := req.Config.(*greetConfig)
	in := req.Input.(*greetInput)
	return req.Values.PutValue(ctx, req.PipelineID, req.RunID, "greeting", cfg.Greeting+", "+in.Name)
}

// noInput — реализация без input.
type noInput struct{}

func (noInput) NewConfig() Config                   { return &BaseConfig{} }
func (noInput) NewInput() any                       { return nil }
func (noInput) Run(context.Context, *Request) error { return nil }

func newEnv() (Env, *store.Memory, *reporter.Recorder) {
	mem := store.NewMemory()
	rec := &reporter.Recorder{}
	return Env{Results: mem, Values: mem, Reporter: rec}, mem, rec
}

func TestNew_ValidConfig(t *testing.T) {
	tk, err := New("hello", "test.greet", greet{}, map[string]any{
		"greeting": "Hi",
		"parents":  []any{"root"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tk.Name() != "hello" || tk.ID() != "test.greet" {
		t.Errorf("unexpected identity: %s / %s", tk.Name(), tk.ID())
	}
	if parents := tk.Parents(); len(parents) != 1 || parents[0] != "root" {
		t.Errorf("unexpected parents: %v", parents)
	}
	if tk.ConfigMap()["greeting"] != "Hi" {
		t.Errorf("config map should contain greeting, got %v", tk.ConfigMap())
	}
}

func TestNew_ConfigValidation(t *testing.T) {
	cases := map[string]map[string]any{
		"missing field": {},
		"mistyped":      {"greeting": 42},
		"constraint":    {"greeting": "Hi", "repeat": 100},
		"empty value":   {"greeting": ""},
	}

	for name, raw := range cases {
		_, err := New("hello", "test.greet", greet{}, raw)
		if err == nil {
			t.Errorf("%s: expected error", name)
			continue
		}
		if !errors.Is(err, ErrConfigValidation) {
			t.Errorf("%s: expected ErrConfigValidation, got %v", name, err)
		}

		var cve *ConfigValidationError
		if !errors.As(err, &cve) || cve.Task != "hello" {
			t.Errorf("%s: expected ConfigValidationError for hello, got %v", name, err)
		}
	}
}

// Limits — встроенная структура с ограничением; её поля в JSON
// лежат на уровне конфигурации.
type Limits struct {
	Max int `json:"max" validate:"lte=5"`
}

type limitedConfig struct {
	BaseConfig
	Limits
}

type limited struct{ noInput }

func (limited) NewConfig() Config { return &limitedConfig{} }

func TestNew_SchemaErrorUsesJSONNames(t *testing.T) {
	cases := []struct {
		name  string
		impl  Implementation
		raw   map[string]any
		field string
	}{
		{"tagged field", greet{}, map[string]any{"greeting": "Hi", "repeat": 100}, "repeat"},
		{"embedded struct", limited{}, map[string]any{"max": 9}, "max"},
	}

	for _, tc := range cases {
		_, err := New("t", "test.t", tc.impl, tc.raw)

		var se *SchemaError
		if !errors.As(err, &se) {
			t.Errorf("%s: expected SchemaError, got %v", tc.name, err)
			continue
		}
		if len(se.Fields) != 1 || se.Fields[0].Field != tc.field {
			t.Errorf("%s: expected field %q, got %+v", tc.name, tc.field, se.Fields)
		}
	}

	// Лишние ключи допускаются: общие Defaults pipeline приходят всем задачам
	if _, err := New("t", "test.t", limited{}, map[string]any{"max": 1, "wait": 0}); err != nil {
		t.Errorf("unknown keys should be accepted, got %v", err)
	}
}

func TestValidateInput_NoInputType(t *testing.T) {
	tk, err := New("plain", "test.plain", noInput{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Нет типа input и нет данных — успех с nil
	input, err := tk.ValidateInput(nil)
	if err != nil || input != nil {
		t.Errorf("expected nil, nil; got %v, %v", input, err)
	}

	_, err = tk.ValidateInput(map[string]any{"message": "hi"})
	if !errors.Is(err, ErrUnexpectedInput) {
		t.Errorf("expected ErrUnexpectedInput, got %v", err)
	}
	if !errors.Is(err, ErrInputValidation) {
		t.Errorf("expected ErrInputValidation, got %v", err)
	}
}

func TestValidateInput_Schema(t *testing.T) {
	tk, _ := New("hello", "test.greet", greet{}, map[string]any{"greeting": "Hi"})

	if _, err := tk.ValidateInput(map[string]any{}); !errors.Is(err, ErrInputValidation) {
		t.Errorf("missing field: expected ErrInputValidation, got %v", err)
	}
	if _, err := tk.ValidateInput(map[string]any{"name": []any{1}}); !errors.Is(err, ErrInputValidation) {
		t.Errorf("mistyped field: expected ErrInputValidation, got %v", err)
	}

	input, err := tk.ValidateInput(map[string]any{"name": "Bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if input.(*greetInput).Name != "Bob" {
		t.Errorf("expected Bob, got %+v", input)
	}
}

func TestStart_Success(t *testing.T) {
	env, mem, rec := newEnv()
	ctx := context.Background()
	_ = mem.CreateRun(ctx, &domain.PipelineRun{PipelineID: "p", RunID: "r"})

	tk, _ := New("hello", "test.greet", greet{}, map[string]any{"greeting": "Hi"})
	if ok := tk.Start(ctx, "p", "r", map[string]any{"name": "Bob"}, env); !ok {
		t.Fatal("expected success")
	}

	trace := strings.Join(rec.Trace(), ",")
	if trace != "hello RUNNING,hello DONE" {
		t.Errorf("unexpected trace: %s", trace)
	}

	results, _ := mem.ListTaskResults(ctx, "p", "r")
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.Status != domain.StatusDone {
		t.Errorf("expected DONE, got %s", res.Status)
	}
	if res.StartedAt == nil || res.CompletedAt == nil {
		t.Error("timestamps should be set")
	}
	if res.Input["name"] != "Bob" {
		t.Errorf("input should be stored, got %v", res.Input)
	}

	v, err := mem.GetValue(ctx, "p", "r", "greeting")
	if err != nil || v != "Hi, Bob" {
		t.Errorf("expected stored greeting, got %v (%v)", v, err)
	}

	// Единственная задача DONE — run тоже DONE
	run, _ := mem.GetRun(ctx, "p", "r")
	if run.Status != domain.StatusDone {
		t.Errorf("expected run DONE, got %s", run.Status)
	}
}

func TestStart_RuntimeError(t *testing.T) {
	env, mem, rec := newEnv()
	ctx := context.Background()
	_ = mem.CreateRun(ctx, &domain.PipelineRun{PipelineID: "p", RunID: "r"})

	tk, _ := New("hello", "test.greet", greet{err: errors.New("remote unavailable")}, map[string]any{"greeting": "Hi"})
	if ok := tk.Start(ctx, "p", "r", map[string]any{"name": "Bob"}, env); ok {
		t.Fatal("expected failure")
	}

	entries := rec.Entries()
	last := entries[len(entries)-1].Task
	if last.Status != domain.StatusRuntimeError || last.Message != "remote unavailable" {
		t.Errorf("unexpected last event: %+v", last)
	}

	results, _ := mem.ListTaskResults(ctx, "p", "r")
	if results[0].Status != domain.StatusRuntimeError {
		t.Errorf("expected RUNTIME_ERROR, got %s", results[0].Status)
	}

	run, _ := mem.GetRun(ctx, "p", "r")
	if run.Status != domain.StatusRuntimeError {
		t.Errorf("expected run RUNTIME_ERROR, got %s", run.Status)
	}
}

func TestStart_PanicIsContained(t *testing.T) {
	env, mem, _ := newEnv()
	ctx := context.Background()

	tk, _ := New("hello", "test.greet", greet{panic: true}, map[string]any{"greeting": "Hi"})
	if ok := tk.Start(ctx, "p", "r", map[string]any{"name": "Bob"}, env); ok {
		t.Fatal("expected failure")
	}

	results, _ := mem.ListTaskResults(ctx, "p", "r")
	if results[0].Status != domain.StatusRuntimeError {
		t.Errorf("expected RUNTIME_ERROR, got %s", results[0].Status)
	}
	if !strings.Contains(results[0].Message, "boom") {
		t.Errorf("message should mention panic value, got %q", results[0].Message)
	}
}

func TestStart_ValidationError(t *testing.T) {
	env, mem, rec := newEnv()
	ctx := context.Background()
	_ = mem.CreateRun(ctx, &domain.PipelineRun{PipelineID: "p", RunID: "r"})

	tk, _ := New("plain", "test.plain", noInput{}, nil)
	if ok := tk.Start(ctx, "p", "r", map[string]any{"unexpected": true}, env); ok {
		t.Fatal("expected failure")
	}

	// RUNNING не репортится: input отклонён до старта
	trace := rec.Trace()
	if len(trace) != 1 || trace[0] != "plain VALIDATION_ERROR" {
		t.Errorf("unexpected trace: %v", trace)
	}

	results, _ := mem.ListTaskResults(ctx, "p", "r")
	if results[0].Status != domain.StatusValidationError {
		t.Errorf("expected VALIDATION_ERROR, got %s", results[0].Status)
	}

	run, _ := mem.GetRun(ctx, "p", "r")
	if run.Status != domain.StatusRuntimeError {
		t.Errorf("expected run RUNTIME_ERROR, got %s", run.Status)
	}
}
