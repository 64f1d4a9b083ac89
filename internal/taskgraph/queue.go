package taskgraph

import (
	"context"
	"sync"
	"time"
)

type queueEntry[O any] struct {
	timer   *time.Timer
	running bool
	pending bool
	opts    O
}

// Queue debounces triggers per task and keeps at most one run of each task
// in flight. Triggers that arrive during a run are folded into a single
// rerun.
type Queue[O any] struct {
	ctx    context.Context
	runner *Runner[O]
	delay  time.Duration
	merge  func(prev, next O) O
	onDone func(name string, err error)

	mu      sync.Mutex
	entries map[string]*queueEntry[O]
	wg      sync.WaitGroup
}

type QueueOptions[O any] struct {
	// Delay is the debounce window per task.
	Delay time.Duration
	// Merge folds the options of a trigger into those of a run that is
	// still waiting. Nil keeps the latest.
	Merge func(prev, next O) O
	// OnDone, if set, is called after every run.
	OnDone func(name string, err error)
}

// NewQueue returns a queue whose runs use ctx.
func NewQueue[O any](ctx context.Context, runner *Runner[O], opts QueueOptions[O]) *Queue[O] {
	return &Queue[O]{
		ctx:     ctx,
		runner:  runner,
		delay:   opts.Delay,
		merge:   opts.Merge,
		onDone:  opts.OnDone,
		entries: map[string]*queueEntry[O]{},
	}
}

func (q *Queue[O]) Trigger(name string, opts O) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx.Err() != nil {
		return
	}

	e, ok := q.entries[name]
	if !ok {
		e = &queueEntry[O]{}
		q.entries[name] = e
	}

	switch {
	case e.running && e.pending:
		e.opts = q.mergeOpts(e.opts, opts)
	case e.running:
		e.opts = opts
		e.pending = true
	case e.timer != nil:
		e.opts = q.mergeOpts(e.opts, opts)
		// a timer that already fired is waiting on the lock and will pick
		// up the merged options
		if e.timer.Stop() {
			e.timer = time.AfterFunc(q.delay, func() { q.fire(name) })
		}
	default:
		e.opts = opts
		q.wg.Add(1)
		e.timer = time.AfterFunc(q.delay, func() { q.fire(name) })
	}
}

func (q *Queue[O]) mergeOpts(prev, next O) O {
	if q.merge == nil {
		return next
	}
	return q.merge(prev, next)
}

func (q *Queue[O]) fire(name string) {
	q.mu.Lock()
	e := q.entries[name]
	e.timer = nil
	e.running = true
	opts := e.opts
	q.mu.Unlock()

	for {
		_, err := q.runner.Run(q.ctx, opts, name)
		if q.onDone != nil {
			q.onDone(name, err)
		}

		q.mu.Lock()
		if e.pending && q.ctx.Err() == nil {
			e.pending = false
			opts = e.opts
			q.mu.Unlock()
			continue
		}
		e.running = false
		e.pending = false
		q.mu.Unlock()
		q.wg.Done()
		return
	}
}

// Wait blocks until no run is scheduled or in flight.
func (q *Queue[O]) Wait() {
	q.wg.Wait()
}
