package pipeline

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"dario.cat/mergo"

	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/task"
)

// Ошибки pipeline.
var (
	// ErrEmptyPipelineID — у pipeline нет идентификатора.
	ErrEmptyPipelineID = errors.New("pipeline id is required")

	// ErrPipelineNotFound — pipeline не зарегистрирован.
	ErrPipelineNotFound = errors.New("pipeline not found")

	// ErrPipelineExists — pipeline с таким id уже зарегистрирован.
	ErrPipelineExists = errors.New("pipeline already registered")
)

// TaskSpec — задача в описании pipeline.
type TaskSpec struct {
	// Name — имя задачи внутри pipeline.
	Name string `json:"name"`

	// Type — идентификатор реализации в task.Registry.
	Type string `json:"type"`

	// Config — сырая конфигурация (включая "parents").
	Config map[string]any `json:"config,omitempty"`
}

// Spec — описание pipeline.
type Spec struct {
	ID    string     `json:"id"`
	Title string     `json:"title,omitempty"`
	Tasks []TaskSpec `json:"tasks"`

	// Defaults — значения, которые подмешиваются в конфигурацию каждой
	// задачи. Значения задачи имеют приоритет.
	Defaults map[string]any `json:"defaults,omitempty"`

	// Iterations — значения итераций. Непустой список означает, что
	// граф выполняется отдельным run на каждое значение.
	Iterations []string `json:"iterations,omitempty"`
}

// Definition — собранный pipeline.
type Definition struct {
	id         string
	title      string
	tasks      []*task.Task
	byName     map[string]*task.Task
	order      []*task.Task
	iterations []string
}

// Build собирает Definition: находит реализации, валидирует
// конфигурации и граф.
func Build(spec Spec, reg *task.Registry) (*Definition, error) {
	if spec.ID == "" {
		return nil, ErrEmptyPipelineID
	}

	def := &Definition{
		id:         spec.ID,
		title:      spec.Title,
		tasks:      make([]*task.Task, 0, len(spec.Tasks)),
		byName:     make(map[string]*task.Task, len(spec.Tasks)),
		iterations: append([]string(nil), spec.Iterations...),
	}
	if def.title == "" {
		def.title = spec.ID
	}

	for _, ts := range spec.Tasks {
		impl, err := reg.Resolve(ts.Type)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: task %s: %w", spec.ID, ts.Name, err)
		}

		raw, err := mergeConfig(ts.Config, spec.Defaults)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: task %s: merge defaults: %w", spec.ID, ts.Name, err)
		}

		t, err := task.New(ts.Name, ts.Type, impl, raw)
		if err != nil {
			return nil, fmt.Errorf("pipeline %s: %w", spec.ID, err)
		}
		def.tasks = append(def.tasks, t)
		def.byName[t.Name()] = t
	}

	nodes := make([]engine.Node, len(def.tasks))
	for i, t := range def.tasks {
		nodes[i] = t
	}
	ordered, err := engine.Order(nodes)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", spec.ID, err)
	}

	def.order = make([]*task.Task, len(ordered))
	for i, n := range ordered {
		def.order[i] = n.(*task.Task)
	}
	return def, nil
}

// MustBuild — Build, паникующий при ошибке.
func MustBuild(spec Spec, reg *task.Registry) *Definition {
	def, err := Build(spec, reg)
	if err != nil {
		panic(err)
	}
	return def
}

// mergeConfig подмешивает defaults в копию конфигурации задачи.
func mergeConfig(config, defaults map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(config)+len(defaults))
	maps.Copy(merged, config)
	if len(defaults) == 0 {
		return merged, nil
	}
	if err := mergo.Merge(&merged, defaults); err != nil {
		return nil, err
	}
	return merged, nil
}

// ID возвращает идентификатор pipeline.
func (d *Definition) ID() string { return d.id }

// Title возвращает название pipeline.
func (d *Definition) Title() string { return d.title }

// Tasks возвращает задачи в порядке объявления.
func (d *Definition) Tasks() []*task.Task {
	return append([]*task.Task(nil), d.tasks...)
}

// Order возвращает задачи в топологическом порядке.
func (d *Definition) Order() []*task.Task {
	return append([]*task.Task(nil), d.order...)
}

// Task возвращает задачу по имени.
func (d *Definition) Task(name string) (*task.Task, bool) {
	t, ok := d.byName[name]
	return t, ok
}

// Iterations возвращает значения итераций (nil — без итераций).
func (d *Definition) Iterations() []string {
	return append([]string(nil), d.iterations...)
}

// Registry — каталог pipeline процесса.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]*Definition
}

// NewRegistry создаёт пустой каталог.
func NewRegistry() *Registry {
	return &Registry{pipelines: make(map[string]*Definition)}
}

// Register добавляет pipeline в каталог.
func (r *Registry) Register(def *Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pipelines[def.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrPipelineExists, def.ID())
	}
	r.pipelines[def.ID()] = def
	return nil
}

// Get возвращает pipeline по id.
func (r *Registry) Get(id string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.pipelines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, id)
	}
	return def, nil
}

// List возвращает все pipeline, отсортированные по id.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(r.pipelines))
	for _, def := range r.pipelines {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID() < defs[j].ID() })
	return defs
}
