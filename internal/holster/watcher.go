package ih

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sjc5/holster/internal/globset"
	"github.com/sjc5/holster/internal/taskgraph"
)

const defaultWatchDebounce = 30 * time.Millisecond

type WatchEvent string

const (
	EventAdd    WatchEvent = "add"
	EventUnlink WatchEvent = "unlink"
	EventChange WatchEvent = "change"
)

// watchEvents maps an fsnotify op to the events bindings filter on. Chmod
// alone maps to nothing.
func watchEvents(op fsnotify.Op) []WatchEvent {
	var out []WatchEvent
	if op.Has(fsnotify.Create) {
		out = append(out, EventAdd)
	}
	if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		out = append(out, EventUnlink)
	}
	if op.Has(fsnotify.Write) {
		out = append(out, EventChange)
	}
	return out
}

type watchBinding struct {
	patterns globset.Set
	events   []WatchEvent // empty matches every event
	task     string
	options  func(opts Options, rel string) Options
}

func (b watchBinding) matches(evt WatchEvent, rel string) bool {
	if len(b.events) > 0 && !slices.Contains(b.events, evt) {
		return false
	}
	return b.patterns.Match(rel)
}

func (c *Config) getInitialWatchBindings() ([]watchBinding, error) {
	blocks := strings.TrimSuffix(c.Paths.BlocksFolder, "/")
	if blocks == "" {
		return nil, fmt.Errorf("error: blocks folder is not set")
	}
	return []watchBinding{
		{
			patterns: globset.New(blocks+"/**/*.scss", "!"+blocks+"/**/_*.scss"),
			events:   []WatchEvent{EventAdd, EventUnlink},
			task:     "sass:compile",
		},
		{
			patterns: globset.New(c.Paths.SassFiles...),
			events:   []WatchEvent{EventChange},
			task:     "sass:changed",
		},
		{
			patterns: globset.New(blocks + "/**/_*.scss"),
			task:     "sass:partials",
			options: func(opts Options, rel string) Options {
				return opts.WithPartials(PartialDir(blocks, rel))
			},
		},
		{
			patterns: globset.New(c.Paths.Holsters...),
			task:     "holsters:generate",
		},
	}, nil
}

// PartialDir is the directory holding a partial, relative to the blocks
// folder, at any depth. A partial directly in the blocks folder gives "".
func PartialDir(blocksFolder, rel string) string {
	blocksFolder = strings.TrimSuffix(blocksFolder, "/")
	dir := path.Dir(rel)
	if dir == blocksFolder {
		return ""
	}
	return strings.TrimPrefix(dir, blocksFolder+"/")
}

type trigger interface {
	Trigger(name string, opts Options)
}

// dispatch triggers the task of every binding matching each event. base
// is the option set of the watch invocation.
func (c *Config) dispatch(q trigger, base Options, evts []fsnotify.Event) {
	bindings, err := c.watchBindings.Get()
	if err != nil {
		c.Logger.Errorf("error: %v", err)
		return
	}
	root := c.getCleanRootDir()
	for _, evt := range evts {
		rel, err := filepath.Rel(root, evt.Name)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		for _, kind := range watchEvents(evt.Op) {
			for _, b := range bindings {
				if !b.matches(kind, rel) {
					continue
				}
				opts := base
				if b.options != nil {
					opts = b.options(opts, rel)
				}
				c.Logger.Infof("%s %s: running '%s'", kind, rel, b.task)
				q.Trigger(b.task, opts)
			}
		}
	}
}

func (c *Config) devConfig() DevConfig {
	if c.DevConfig == nil {
		return DevConfig{WatchDebounce: defaultWatchDebounce}
	}
	return *c.DevConfig
}

// watch runs until ctx is done, rerunning the bound tasks as files under
// the watch root change. Failures of triggered tasks are logged and the
// session keeps going.
func (c *Config) watch(ctx context.Context, inv *Invocation) error {
	c.killPriorPID()
	if err := c.writePIDFile(os.Getpid()); err != nil {
		c.Logger.Errorf("error: failed to write PID file: %v", err)
	}
	defer func() {
		if err := c.deletePIDFile(); err != nil {
			c.Logger.Errorf("error: failed to delete PID file: %v", err)
		}
	}()

	g, err := c.Graph()
	if err != nil {
		return err
	}

	dev := c.devConfig()
	var rs *refreshServer
	if dev.RefreshServer {
		if rs, err = c.startRefreshServer(ctx); err != nil {
			return err
		}
	}

	q := taskgraph.NewQueue(ctx, taskgraph.NewRunner(g, c.Logger), taskgraph.QueueOptions[Options]{
		Merge: mergeOptions,
		OnDone: func(name string, err error) {
			if err == nil && rs != nil {
				rs.notify(ctx, name)
			}
		},
	})
	defer q.Wait()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}
	defer watcher.Close()

	watchRoot := filepath.Join(c.getCleanRootDir(), filepath.FromSlash(c.Paths.WatchRoot))
	if err := addDirs(watcher, watchRoot); err != nil {
		return fmt.Errorf("error adding directories to watcher: %w", err)
	}

	base := inv.Options()
	base.Partials = nil
	db := newDebouncer(dev.WatchDebounce, func(evts []fsnotify.Event) {
		c.dispatch(q, base, evts)
	})
	defer db.stop()

	c.Logger.Infof("watching %s", c.Paths.WatchRoot)

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			db.add(evt)
			if evt.Has(fsnotify.Create) {
				if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
					if err := watchNewDir(watcher, evt.Name, db.add); err != nil {
						c.Logger.Errorf("error: failed to watch new directory: %v", err)
					}
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.Logger.Errorf("error: watcher: %v", err)
		}
	}
}

func addDirs(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(walkedPath string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("error walking path: %w", err)
		}
		if info.IsDir() {
			if err := w.Add(walkedPath); err != nil {
				return fmt.Errorf("error adding directory to watcher: %w", err)
			}
		}
		return nil
	})
}

// watchNewDir watches a directory created during the session. Files that
// were already inside it when it was added never get their own events, so
// each one is reported as created.
func watchNewDir(w *fsnotify.Watcher, dir string, add func(fsnotify.Event)) error {
	if err := addDirs(w, dir); err != nil {
		return err
	}
	return filepath.WalkDir(dir, func(walkedPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error walking path: %w", err)
		}
		if !d.IsDir() {
			add(fsnotify.Event{Name: walkedPath, Op: fsnotify.Create})
		}
		return nil
	})
}

// debouncer collects events until none has arrived for delay, then hands
// the batch to fn.
type debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending []fsnotify.Event
	fn      func([]fsnotify.Event)
}

func newDebouncer(delay time.Duration, fn func([]fsnotify.Event)) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

func (d *debouncer) add(evt fsnotify.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, evt)
	if d.timer == nil {
		d.timer = time.AfterFunc(d.delay, d.flush)
		return
	}
	d.timer.Reset(d.delay)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	evts := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()
	if len(evts) > 0 {
		d.fn(evts)
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}
