// Package watcher watches the region import directory.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event represents a debounced file event.
type Event struct {
	Path      string
	Operation Operation
}

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler is called for every debounced event. Events are delivered one at
// a time, in the order they settled.
type Handler func(ctx context.Context, event Event) error

type pendingEvent struct {
	timestamp time.Time
	op        Operation
}

// Config holds watcher configuration.
type Config struct {
	Paths    []string
	Debounce time.Duration
	// Filter selects the files to report. Nil accepts every file.
	Filter func(path string) bool
}

// Watcher reports region files appearing, changing and disappearing in the
// watched directories.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	paths     []string
	filter    func(string) bool
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent

	queue  chan Event
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new file watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Filter == nil {
		cfg.Filter = func(string) bool { return true }
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		paths:     cfg.Paths,
		filter:    cfg.Filter,
		debounce:  cfg.Debounce,
		pending:   make(map[string]*pendingEvent),
		queue:     make(chan Event, 64),
	}, nil
}

// Start watches the configured directories and reports the files already
// present in them as created.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, w.cancel = context.WithCancel(ctx)
	for _, path := range w.paths {
		if err := w.AddPath(path); err != nil {
			w.logger.Warn("failed to watch path", "path", path, "error", err)
		}
	}

	w.wg.Add(3)
	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)
	go w.dispatchLoop(ctx)

	for _, path := range w.paths {
		w.scan(path)
	}
	return nil
}

// Stop stops the watcher and waits for the in-flight handler.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.fsWatcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if !w.filter(event.Name) {
		return
	}
	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())
	w.record(event.Name, fsnotifyOpToOperation(event.Op))
}

// record adds an event to the debounce set. A delete wins over earlier
// events; a create after a delete turns the pair into a create.
func (w *Watcher) record(path string, op Operation) {
	w.mu.Lock()
	defer w.mu.Unlock()

	existing, ok := w.pending[path]
	if !ok {
		w.pending[path] = &pendingEvent{timestamp: time.Now(), op: op}
		return
	}
	existing.timestamp = time.Now()
	switch {
	case existing.op == OpDelete && op == OpCreate:
		existing.op = OpCreate
	case op == OpDelete:
		existing.op = OpDelete
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce / 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, e := range w.settled(time.Now()) {
				select {
				case w.queue <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// settled removes and returns the events quiet for at least the debounce
// interval, oldest first.
func (w *Watcher) settled(now time.Time) []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	type aged struct {
		Event
		at time.Time
	}
	var ready []aged
	for path, p := range w.pending {
		if now.Sub(p.timestamp) < w.debounce {
			continue
		}
		delete(w.pending, path)
		ready = append(ready, aged{Event{Path: path, Operation: p.op}, p.timestamp})
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].at.Before(ready[j].at) })

	out := make([]Event, len(ready))
	for i, a := range ready {
		out[i] = a.Event
	}
	return out
}

func (w *Watcher) dispatchLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-w.queue:
			w.logger.Info("processing file event", "path", e.Path, "operation", e.Operation.String())
			if err := w.handler(ctx, e); err != nil {
				w.logger.Error("handler error",
					"path", e.Path,
					"operation", e.Operation.String(),
					"error", err,
				)
			}
		}
	}
}

// scan records every matching file already in dir as created.
func (w *Watcher) scan(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("failed to scan directory", "path", dir, "error", err)
		return
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if e.Type().IsRegular() && w.filter(path) {
			w.record(path, OpCreate)
		}
	}
}

func fsnotifyOpToOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		// A renamed file is gone from the watched path.
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpModify
	}
}

// AddPath adds a directory to watch.
func (w *Watcher) AddPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.fsWatcher.Add(absPath); err != nil {
		return err
	}
	w.logger.Info("watching directory", "path", absPath)
	return nil
}

// RemovePath stops watching a directory.
func (w *Watcher) RemovePath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.fsWatcher.Remove(absPath); err != nil {
		return err
	}
	w.logger.Info("removed watch path", "path", absPath)
	return nil
}
