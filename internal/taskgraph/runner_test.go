package taskgraph

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sjc5/holster/internal/util"
)

type recorder struct {
	mu  sync.Mutex
	ran []string
}

func (r *recorder) task(name string, deps ...string) Task[opts] {
	return Task[opts]{Name: name, Deps: deps, Run: func(context.Context, *Invocation[opts]) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.ran = append(r.ran, name)
		return nil
	}}
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

func TestRunPrerequisitesFirstAndOnce(t *testing.T) {
	rec := &recorder{}
	g := mustGraph(t,
		rec.task("clean"),
		rec.task("sass:blocks_list"),
		rec.task("sass", "sass:blocks_list"),
		rec.task("styles:add-css-imports", "sass:blocks_list"),
		rec.task("watch", "clean", "sass", "styles:add-css-imports"),
	)

	inv, err := NewRunner(g, &util.RecordingLogger{}).Run(context.Background(), opts{}, "watch")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []string{"clean", "sass:blocks_list", "sass", "styles:add-css-imports", "watch"}
	if got := rec.list(); !reflect.DeepEqual(got, want) {
		t.Errorf("ran %v, want %v", got, want)
	}
	for _, name := range want {
		if st := inv.State(name); st != Completed {
			t.Errorf("State(%q) = %s", name, st)
		}
	}
}

func TestFailureSkipsDependents(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	g := mustGraph(t,
		rec.task("clean"),
		Task[opts]{Name: "sass:dist", Run: func(context.Context, *Invocation[opts]) error { return boom }},
		rec.task("styles:dist", "sass:dist"),
		rec.task("build", "clean", "styles:dist"),
		rec.task("images"),
	)

	inv, err := NewRunner(g, &util.RecordingLogger{}).Run(context.Background(), opts{}, "build", "images")
	if !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want boom", err)
	}
	var te *TaskError
	if !errors.As(err, &te) || te.Task != "sass:dist" {
		t.Errorf("expected TaskError for sass:dist, got %v", err)
	}

	if got := rec.list(); !reflect.DeepEqual(got, []string{"clean"}) {
		t.Errorf("ran %v, want [clean]", got)
	}
	want := map[string]State{
		"clean":       Completed,
		"sass:dist":   Failed,
		"styles:dist": Skipped,
		"build":       Skipped,
		"images":      Skipped,
	}
	for name, st := range want {
		if got := inv.State(name); got != st {
			t.Errorf("State(%q) = %s, want %s", name, got, st)
		}
	}
}

func TestSeriesInsideTaskSharesInvocation(t *testing.T) {
	rec := &recorder{}
	var seen []bool
	probe := func(name string) Task[opts] {
		return Task[opts]{Name: name, Run: func(_ context.Context, inv *Invocation[opts]) error {
			seen = append(seen, inv.Options().Production)
			return nil
		}}
	}
	g := mustGraph(t,
		rec.task("clean"),
		probe("critical:dist"),
		probe("styles:dist"),
		Task[opts]{Name: "build", Deps: []string{"clean"}, Run: func(ctx context.Context, inv *Invocation[opts]) error {
			prod := inv.Options()
			prod.Production = true
			return inv.WithOptions(prod).Series(ctx, "clean", "critical:dist", "styles:dist")
		}},
	)

	if _, err := NewRunner(g, &util.RecordingLogger{}).Run(context.Background(), opts{}, "build"); err != nil {
		t.Fatal(err)
	}
	if got := rec.list(); !reflect.DeepEqual(got, []string{"clean"}) {
		t.Errorf("clean should run once per invocation, ran %v", got)
	}
	if !reflect.DeepEqual(seen, []bool{true, true}) {
		t.Errorf("derived options not seen by series tasks: %v", seen)
	}
}

func TestRunUnknownTask(t *testing.T) {
	g := mustGraph(t, Task[opts]{Name: "clean", Run: noop})
	_, err := NewRunner(g, &util.RecordingLogger{}).Run(context.Background(), opts{}, "clean", "nope")
	if !errors.Is(err, ErrUnknownTask) {
		t.Errorf("Run() error = %v, want ErrUnknownTask", err)
	}
}

func TestRunLogsTaskLifecycle(t *testing.T) {
	log := &util.RecordingLogger{}
	g := mustGraph(t, Task[opts]{Name: "clean", Run: noop})
	if _, err := NewRunner(g, log).Run(context.Background(), opts{}, "clean"); err != nil {
		t.Fatal(err)
	}
	lines := log.Lines()
	if len(lines) != 2 || lines[0] != "info: Starting 'clean'..." {
		t.Errorf("unexpected log lines %v", lines)
	}
}

func TestQueueCoalescesTriggers(t *testing.T) {
	var inFlight, maxInFlight, runs atomic.Int32
	release := make(chan struct{})
	var lastProd atomic.Bool

	g := mustGraph(t, Task[opts]{Name: "sass:changed", Run: func(_ context.Context, inv *Invocation[opts]) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		runs.Add(1)
		lastProd.Store(inv.Options().Production)
		<-release
		return nil
	}})

	var done atomic.Int32
	q := NewQueue(context.Background(), NewRunner(g, &util.RecordingLogger{}), QueueOptions[opts]{
		Delay:  10 * time.Millisecond,
		OnDone: func(string, error) { done.Add(1) },
	})

	// a burst inside the debounce window is one run
	for i := 0; i < 5; i++ {
		q.Trigger("sass:changed", opts{})
	}
	waitFor(t, func() bool { return runs.Load() == 1 })

	// triggers during the run fold into one rerun with the latest options
	q.Trigger("sass:changed", opts{})
	q.Trigger("sass:changed", opts{Production: true})

	release <- struct{}{}
	waitFor(t, func() bool { return runs.Load() == 2 })
	release <- struct{}{}
	q.Wait()

	if got := runs.Load(); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max in flight = %d, want 1", got)
	}
	if !lastProd.Load() {
		t.Errorf("rerun did not use the latest options")
	}
	if got := done.Load(); got != 2 {
		t.Errorf("onDone called %d times, want 2", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQueueMergesWaitingOptions(t *testing.T) {
	type partials struct{ dirs []string }
	var mu sync.Mutex
	var got [][]string

	r := NewRegistry[partials]()
	_ = r.Add(Task[partials]{Name: "sass:partials", Run: func(_ context.Context, inv *Invocation[partials]) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, inv.Options().dirs)
		return nil
	}})
	g, err := r.Graph()
	if err != nil {
		t.Fatal(err)
	}

	q := NewQueue(context.Background(), NewRunner(g, &util.RecordingLogger{}), QueueOptions[partials]{
		Delay: 20 * time.Millisecond,
		Merge: func(prev, next partials) partials {
			return partials{dirs: append(append([]string(nil), prev.dirs...), next.dirs...)}
		},
	})
	q.Trigger("sass:partials", partials{dirs: []string{"header"}})
	q.Trigger("sass:partials", partials{dirs: []string{"footer"}})
	q.Wait()

	if len(got) != 1 || !reflect.DeepEqual(got[0], []string{"header", "footer"}) {
		t.Errorf("runs = %v, want one run with [header footer]", got)
	}
}
