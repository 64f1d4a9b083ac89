// Package taskgraph runs named tasks with ordered prerequisites over an
// immutable, validated dependency graph.
package taskgraph

import (
	"context"
	"fmt"
	"slices"
	"sort"
)

// Func is a task body. inv carries the options of the run and lets the body
// run further tasks in the same invocation.
type Func[O any] func(ctx context.Context, inv *Invocation[O]) error

type Task[O any] struct {
	Name        string
	Description string
	// Deps run to completion, in this order, before Run.
	Deps []string
	// Run may be nil for tasks that only group prerequisites.
	Run Func[O]
}

type Registry[O any] struct {
	tasks map[string]Task[O]
	order []string
}

func NewRegistry[O any]() *Registry[O] {
	return &Registry[O]{tasks: map[string]Task[O]{}}
}

func (r *Registry[O]) Add(t Task[O]) error {
	if t.Name == "" {
		return &GraphError{Kind: ErrUnknownTask, Msg: "task name is required"}
	}
	if _, exists := r.tasks[t.Name]; exists {
		return &GraphError{Kind: ErrDuplicateTask, Msg: fmt.Sprintf("%q", t.Name)}
	}
	t.Deps = slices.Clone(t.Deps)
	r.tasks[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Graph is a validated snapshot of a registry. It is safe for concurrent
// reads and is never mutated.
type Graph[O any] struct {
	tasks      map[string]Task[O]
	order      []string // registration order
	dependents map[string][]string
}

// Graph validates the registry: every prerequisite must be registered and
// the prerequisite relation must be acyclic.
func (r *Registry[O]) Graph() (*Graph[O], error) {
	g := &Graph[O]{
		tasks:      make(map[string]Task[O], len(r.tasks)),
		order:      slices.Clone(r.order),
		dependents: map[string][]string{},
	}
	for name, t := range r.tasks {
		g.tasks[name] = t
	}

	for _, name := range g.order {
		for _, dep := range g.tasks[name].Deps {
			if _, ok := g.tasks[dep]; !ok {
				return nil, &GraphError{Kind: ErrUnknownTask, Msg: fmt.Sprintf("%q required by %q", dep, name)}
			}
			if !slices.Contains(g.dependents[dep], name) {
				g.dependents[dep] = append(g.dependents[dep], name)
			}
		}
	}
	for dep := range g.dependents {
		sort.Strings(g.dependents[dep])
	}

	if err := g.validateAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

const (
	unvisited = iota
	visiting
	done
)

// validateAcyclic walks tasks in sorted name order and prerequisites in
// listed order, so the reported cycle path is the same on every run.
func (g *Graph[O]) validateAcyclic() error {
	names := slices.Clone(g.order)
	sort.Strings(names)

	marks := make(map[string]int, len(names))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case done:
			return nil
		case visiting:
			start := slices.Index(stack, name)
			path := append(slices.Clone(stack[start:]), name)
			return cycleError(path)
		}
		marks[name] = visiting
		stack = append(stack, name)
		for _, dep := range g.tasks[name].Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		marks[name] = done
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph[O]) Task(name string) (Task[O], bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// Names returns task names in registration order.
func (g *Graph[O]) Names() []string {
	return slices.Clone(g.order)
}

// Dependents returns the tasks that list name as a direct prerequisite,
// sorted by name.
func (g *Graph[O]) Dependents(name string) []string {
	return slices.Clone(g.dependents[name])
}

// Plan is the order in which running name executes task bodies:
// prerequisites depth first in listed order, each task once, name last.
func (g *Graph[O]) Plan(name string) ([]string, error) {
	if _, ok := g.tasks[name]; !ok {
		return nil, unknownTask(name)
	}
	var plan []string
	seen := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		for _, dep := range g.tasks[n].Deps {
			walk(dep)
		}
		plan = append(plan, n)
	}
	walk(name)
	return plan, nil
}

// TopologicalOrder orders every task after its prerequisites. Ties are
// broken by name.
func (g *Graph[O]) TopologicalOrder() []string {
	indeg := make(map[string]int, len(g.tasks))
	for _, name := range g.order {
		indeg[name] = len(uniq(g.tasks[name].Deps))
	}

	var ready []string
	for _, name := range g.order {
		if indeg[name] == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	out := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		out = append(out, n)
		for _, d := range g.dependents[n] {
			indeg[d]--
			if indeg[d] == 0 {
				ready = append(ready, d)
				sort.Strings(ready)
			}
		}
	}
	return out
}

func uniq(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
