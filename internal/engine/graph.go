package engine

import (
	"container/heap"
	"fmt"
)

// Node — узел графа: задача с именем и списком родителей.
type Node interface {
	// Name — имя задачи внутри pipeline.
	Name() string

	// Parents — имена задач, которые должны завершиться раньше.
	Parents() []string
}

// vertex — внутреннее представление узла.
type vertex struct {
	node       Node
	index      int // позиция в порядке объявления
	inDegree   int
	dependents []*vertex
}

// Graph — граф зависимостей задач pipeline.
type Graph struct {
	vertices []*vertex
	byName   map[string]*vertex
}

// BuildGraph строит граф и проверяет, что все родители существуют.
//
// Каждое ребро идёт от родителя к задаче. Повторные упоминания
// одного родителя не увеличивают inDegree.
func BuildGraph(nodes []Node) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	g := &Graph{
		vertices: make([]*vertex, 0, len(nodes)),
		byName:   make(map[string]*vertex, len(nodes)),
	}

	// Первый проход: создаём вершины
	for i, n := range nodes {
		name := n.Name()
		if name == "" {
			return nil, NewValidationError("", fmt.Sprintf("task #%d has empty name", i), ErrEmptyTaskName)
		}
		if _, exists := g.byName[name]; exists {
			return nil, NewValidationError(name, "duplicate task name", ErrDuplicateTask)
		}
		v := &vertex{node: n, index: i}
		g.vertices = append(g.vertices, v)
		g.byName[name] = v
	}

	// Второй проход: связываем по parents
	for _, v := range g.vertices {
		seen := make(map[string]bool)
		for _, parent := range v.node.Parents() {
			if parent == v.node.Name() {
				return nil, NewValidationError(parent, "task depends on itself", ErrSelfDependency)
			}
			p, ok := g.byName[parent]
			if !ok {
				return nil, NewValidationError(v.node.Name(),
					fmt.Sprintf("depends on unknown task: %s", parent), ErrMissingDependency)
			}
			if seen[parent] {
				continue
			}
			seen[parent] = true
			p.dependents = append(p.dependents, v)
			v.inDegree++
		}
	}

	return g, nil
}

// Order возвращает задачи в топологическом порядке (алгоритм Кана).
//
// Из нескольких готовых задач первой выбирается объявленная раньше,
// поэтому порядок детерминирован для фиксированного набора задач.
func (g *Graph) Order() ([]Node, error) {
	inDegree := make(map[*vertex]int, len(g.vertices))
	ready := &indexHeap{}
	for _, v := range g.vertices {
		inDegree[v] = v.inDegree
		if v.inDegree == 0 {
			heap.Push(ready, v)
		}
	}

	order := make([]Node, 0, len(g.vertices))
	for ready.Len() > 0 {
		v := heap.Pop(ready).(*vertex)
		order = append(order, v.node)

		for _, dep := range v.dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				heap.Push(ready, dep)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(g.vertices) {
		stuck := make([]string, 0, len(g.vertices)-len(order))
		for _, v := range g.vertices {
			if inDegree[v] > 0 {
				stuck = append(stuck, v.node.Name())
			}
		}
		return nil, &CyclicGraphError{Tasks: stuck}
	}

	return order, nil
}

// Order строит граф и сразу возвращает топологический порядок.
func Order(nodes []Node) ([]Node, error) {
	g, err := BuildGraph(nodes)
	if err != nil {
		return nil, err
	}
	return g.Order()
}

// indexHeap — min-heap вершин по порядку объявления.
type indexHeap []*vertex

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i].index < h[j].index }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *indexHeap) Push(x any) {
	*h = append(*h, x.(*vertex))
}

func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
