package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestFsnotifyOpToOperation(t *testing.T) {
	tests := []struct {
		name     string
		op       fsnotify.Op
		expected Operation
	}{
		{"Remove returns OpDelete", fsnotify.Remove, OpDelete},
		{"Rename returns OpDelete", fsnotify.Rename, OpDelete},
		{"Create returns OpCreate", fsnotify.Create, OpCreate},
		{"Write returns OpModify", fsnotify.Write, OpModify},
		{"Chmod returns OpModify", fsnotify.Chmod, OpModify},
		{"Remove takes precedence over Write", fsnotify.Remove | fsnotify.Write, OpDelete},
		{"Rename takes precedence over Create", fsnotify.Rename | fsnotify.Create, OpDelete},
		{"Create takes precedence over Write", fsnotify.Create | fsnotify.Write, OpCreate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fsnotifyOpToOperation(tt.op); got != tt.expected {
				t.Errorf("fsnotifyOpToOperation(%v) = %v, want %v", tt.op, got, tt.expected)
			}
		})
	}
}

func TestOperationString(t *testing.T) {
	tests := []struct {
		op       Operation
		expected string
	}{
		{OpCreate, "create"},
		{OpModify, "modify"},
		{OpDelete, "delete"},
		{Operation(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.op.String(); got != tt.expected {
				t.Errorf("Operation.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func newTestWatcher(t *testing.T, cfg Config, h Handler) *Watcher {
	t.Helper()
	w, err := New(cfg, h, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w
}

func TestRecordMergesOperations(t *testing.T) {
	w := newTestWatcher(t, Config{Debounce: time.Second}, nil)
	defer func() { _ = w.Stop() }()

	tests := []struct {
		name string
		ops  []Operation
		want Operation
	}{
		{"delete then create", []Operation{OpDelete, OpCreate}, OpCreate},
		{"create then delete", []Operation{OpCreate, OpDelete}, OpDelete},
		{"create then modify", []Operation{OpCreate, OpModify}, OpCreate},
		{"modify twice", []Operation{OpModify, OpModify}, OpModify},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, op := range tt.ops {
				w.record(tt.name, op)
			}
			events := w.settled(time.Now().Add(time.Hour))
			if len(events) != 1 || events[0].Operation != tt.want {
				t.Errorf("settled = %+v, want one %s", events, tt.want)
			}
		})
	}
}

func TestSettledWaitsForDebounce(t *testing.T) {
	w := newTestWatcher(t, Config{Debounce: time.Second}, nil)
	defer func() { _ = w.Stop() }()

	w.record("/a.geojson", OpCreate)
	if got := w.settled(time.Now()); len(got) != 0 {
		t.Errorf("settled too early: %+v", got)
	}
	if got := w.settled(time.Now().Add(2 * time.Second)); len(got) != 1 {
		t.Errorf("settled = %+v, want 1 event", got)
	}
}

func TestWatcherReportsExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "existing.geojson"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	var (
		mu     sync.Mutex
		events []Event
	)
	got := make(chan struct{}, 8)
	handler := func(_ context.Context, e Event) error {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		got <- struct{}{}
		return nil
	}

	w := newTestWatcher(t, Config{
		Paths:    []string{dir},
		Debounce: 50 * time.Millisecond,
		Filter:   func(p string) bool { return strings.HasSuffix(p, ".geojson") },
	}, handler)
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = w.Stop() }()

	wait := func() {
		t.Helper()
		select {
		case <-got:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for watcher event")
		}
	}

	wait()
	if err := os.WriteFile(filepath.Join(dir, "new.geojson"), []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	wait()

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("events = %+v, want 2", events)
	}
	if filepath.Base(events[0].Path) != "existing.geojson" || events[0].Operation != OpCreate {
		t.Errorf("first event = %+v", events[0])
	}
	if filepath.Base(events[1].Path) != "new.geojson" {
		t.Errorf("second event = %+v", events[1])
	}
}
