package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sjc5/holster/internal/util"
)

type State string

const (
	Pending   State = "PENDING"
	Running   State = "RUNNING"
	Completed State = "COMPLETED"
	Failed    State = "FAILED"
	Skipped   State = "SKIPPED"
)

// runState is the mutable status of one invocation. The graph itself is
// never touched, so a graph can back any number of concurrent invocations.
type runState struct {
	mu     sync.Mutex
	status map[string]State
	errs   map[string]error
}

func (s *runState) get(name string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[name], s.errs[name]
}

func (s *runState) set(name string, st State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[name] = st
	if err != nil {
		s.errs[name] = err
	}
}

// Invocation is a single run of the graph with fixed options. Each task body
// runs at most once per invocation.
type Invocation[O any] struct {
	graph  *Graph[O]
	logger util.Logger
	opts   O
	state  *runState
}

func (inv *Invocation[O]) Options() O { return inv.opts }

// WithOptions shares inv's task state but hands opts to the task bodies run
// through the returned invocation.
func (inv *Invocation[O]) WithOptions(opts O) *Invocation[O] {
	derived := *inv
	derived.opts = opts
	return &derived
}

func (inv *Invocation[O]) State(name string) State {
	st, _ := inv.state.get(name)
	return st
}

// Series runs names one after another, each with its prerequisites. The
// first failure stops the series and the remaining names are skipped.
func (inv *Invocation[O]) Series(ctx context.Context, names ...string) error {
	for _, name := range names {
		if _, ok := inv.graph.tasks[name]; !ok {
			return unknownTask(name)
		}
	}
	for i, name := range names {
		if err := inv.run(ctx, name); err != nil {
			for _, rest := range names[i+1:] {
				inv.skip(rest, err)
			}
			return err
		}
	}
	return nil
}

func (inv *Invocation[O]) run(ctx context.Context, name string) error {
	switch st, err := inv.state.get(name); st {
	case Completed:
		return nil
	case Failed, Skipped:
		return err
	case Running:
		return &GraphError{Kind: ErrCycle, Msg: fmt.Sprintf("%q is already running", name)}
	}

	task := inv.graph.tasks[name]
	for _, dep := range task.Deps {
		if err := inv.run(ctx, dep); err != nil {
			inv.skip(name, err)
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		inv.skip(name, err)
		return err
	}

	inv.state.set(name, Running, nil)
	inv.logger.Infof("Starting '%s'...", name)
	start := time.Now()

	if task.Run != nil {
		if err := task.Run(ctx, inv); err != nil {
			var te *TaskError
			if !errors.As(err, &te) {
				err = &TaskError{Task: name, Err: err}
			}
			inv.state.set(name, Failed, err)
			inv.logger.Errorf("'%s' errored after %v: %v", name, time.Since(start), err)
			inv.propagate(name, err)
			return err
		}
	}

	inv.state.set(name, Completed, nil)
	inv.logger.Infof("Finished '%s' after %v", name, time.Since(start))
	return nil
}

// skip marks a pending task as skipped.
func (inv *Invocation[O]) skip(name string, cause error) {
	inv.state.mu.Lock()
	defer inv.state.mu.Unlock()
	if inv.state.status[name] != Pending {
		return
	}
	inv.state.status[name] = Skipped
	inv.state.errs[name] = cause
}

// propagate skips every pending task that transitively depends on failed.
func (inv *Invocation[O]) propagate(failed string, cause error) {
	queue := inv.graph.Dependents(failed)
	seen := map[string]bool{}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		inv.skip(name, cause)
		queue = append(queue, inv.graph.Dependents(name)...)
	}
}

type Runner[O any] struct {
	graph  *Graph[O]
	logger util.Logger
}

func NewRunner[O any](g *Graph[O], logger util.Logger) *Runner[O] {
	if logger == nil {
		logger = util.Log
	}
	return &Runner[O]{graph: g, logger: logger}
}

func (r *Runner[O]) Graph() *Graph[O] { return r.graph }

// Run starts a fresh invocation with opts and runs names in series.
func (r *Runner[O]) Run(ctx context.Context, opts O, names ...string) (*Invocation[O], error) {
	inv := &Invocation[O]{
		graph:  r.graph,
		logger: r.logger,
		opts:   opts,
		state: &runState{
			status: make(map[string]State, len(r.graph.order)),
			errs:   map[string]error{},
		},
	}
	for _, name := range r.graph.order {
		inv.state.status[name] = Pending
	}
	return inv, inv.Series(ctx, names...)
}
