// Package tempfile tracks scratch files created while building requests
// and materializing responses, and guarantees their removal.
//
// A [Tracker] is shared by every fetch of an engine. Each fetch works
// through its own [Scope], so releasing one fetch never touches files that
// belong to another fetch still in flight:
//
//	scope := tracker.Scope()
//	defer scope.Release()
//	scope.Register(path)
//
// [Tracker.Cleanup] removes everything still tracked and is meant for
// teardown.
package tempfile

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Entry is a tracked scratch file.
type Entry struct {
	Path      string
	CreatedAt time.Time
}

// Tracker is a registry of scratch files. The zero value is not usable,
// construct with [New].
type Tracker struct {
	mu       sync.Mutex
	entries  map[string]Entry
	deferred map[string]struct{}
	logger   *slog.Logger
}

// New returns an empty Tracker. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		entries:  make(map[string]Entry),
		deferred: make(map[string]struct{}),
		logger:   logger,
	}
}

// Register adds path to the tracked set if the file currently exists.
// Registering a path twice keeps the first entry.
func (t *Tracker) Register(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[path]; !ok {
		t.entries[path] = Entry{Path: path, CreatedAt: time.Now()}
	}
}

// Tracked reports whether path is currently tracked.
func (t *Tracker) Tracked(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.entries[path]
	return ok
}

// Len returns the number of tracked entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

// Cleanup attempts to delete every tracked path and clears the set.
// Paths that could not be removed are handed to the deferred set, which
// only [Tracker.Close] retries.
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	paths := make([]string, 0, len(t.entries))
	for p := range t.entries {
		paths = append(paths, p)
	}
	clear(t.entries)
	t.mu.Unlock()

	t.remove(paths)
}

// Close retries removal of every deferred path. It is the analogue of
// delete-on-exit and should run once, at process or engine teardown.
func (t *Tracker) Close() error {
	t.Cleanup()

	t.mu.Lock()
	paths := make([]string, 0, len(t.deferred))
	for p := range t.deferred {
		paths = append(paths, p)
	}
	clear(t.deferred)
	t.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (t *Tracker) remove(paths []string) {
	for _, p := range paths {
		err := os.Remove(p)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}

		t.logger.Warn("deferring temp file removal", "path", p, "error", err)

		t.mu.Lock()
		t.deferred[p] = struct{}{}
		t.mu.Unlock()
	}
}

// forget drops paths from the tracked set without touching the disk and
// returns the ones that were tracked.
func (t *Tracker) forget(paths []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	owned := paths[:0]
	for _, p := range paths {
		if _, ok := t.entries[p]; ok {
			delete(t.entries, p)
			owned = append(owned, p)
		}
	}

	return owned
}

// Scope returns a new per-fetch view onto the tracker.
func (t *Tracker) Scope() *Scope {
	return &Scope{tracker: t}
}

// Scope is the set of files registered by a single fetch.
type Scope struct {
	tracker  *Tracker
	mu       sync.Mutex
	paths    []string
	released bool
}

// Register tracks path both in the scope and the parent tracker.
// Registration after Release removes the file immediately.
func (s *Scope) Register(path string) {
	s.tracker.Register(path)
	if !s.tracker.Tracked(path) {
		return
	}

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		s.tracker.remove(s.tracker.forget([]string{path}))
		return
	}
	s.paths = append(s.paths, path)
	s.mu.Unlock()
}

// Paths returns a copy of the paths registered so far.
func (s *Scope) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.paths...)
}

// Release deletes every file registered through the scope that the parent
// tracker still holds. It is safe to call more than once.
func (s *Scope) Release() {
	s.mu.Lock()
	paths := s.paths
	s.paths = nil
	s.released = true
	s.mu.Unlock()

	if len(paths) == 0 {
		return
	}

	s.tracker.remove(s.tracker.forget(paths))
}
