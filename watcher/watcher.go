/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package watcher reports raw change/add/remove events on a dynamically
// growing set of tracked paths. It starts empty: paths are added one at a
// time as the child reports required files over IPC. Debouncing and the
// invalidate decision belong to the reload package, not here; this package
// only classifies and forwards.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/go-tsrun/tsrun/internal/logging"
)

// EventType classifies a raw filesystem event.
type EventType string

const (
	Change    EventType = "change"
	Add       EventType = "add"
	AddDir    EventType = "addDir"
	Remove    EventType = "remove"
	RemoveDir EventType = "removeDir"
)

// Event is one classified filesystem event.
type Event struct {
	Path string
	Type EventType
}

// Watcher wraps fsnotify with directory-level recursion and editor-temp-file
// filtering.
type Watcher struct {
	fsw    *fsnotify.Watcher
	events chan Event
	done   chan struct{}
	log    logging.Logger

	mu     sync.Mutex
	dirs   map[string]struct{}
	closed bool
}

// New starts an empty watcher. Call Add to grow the watched set.
func New(log logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:    fsw,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
		log:    log,
		dirs:   make(map[string]struct{}),
	}
	go w.loop()
	return w, nil
}

// Events returns the channel of classified events.
func (w *Watcher) Events() <-chan Event { return w.events }

// Add registers path for watching. If path is a directory it is watched
// recursively, skipping ignored subdirectories. If path is a file, its
// parent directory is watched (fsnotify has no single-file watch mode).
// Paths under node_modules are silently skipped.
func (w *Watcher) Add(path string) error {
	if underNodeModules(path) {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return w.addDirRecursive(path)
	}
	return w.addDir(filepath.Dir(path))
}

func (w *Watcher) addDirRecursive(root string) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if p != root && shouldIgnoreDir(filepath.Base(p)) {
			return filepath.SkipDir
		}
		return w.addDir(p)
	})
}

func (w *Watcher) addDir(dir string) error {
	w.mu.Lock()
	if _, ok := w.dirs[dir]; ok {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	if err := w.fsw.Add(dir); err != nil {
		return err
	}

	w.mu.Lock()
	w.dirs[dir] = struct{}{}
	w.mu.Unlock()
	return nil
}

func (w *Watcher) knowsDir(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.dirs[path]
	return ok
}

func (w *Watcher) forgetDir(path string) {
	w.mu.Lock()
	delete(w.dirs, path)
	w.mu.Unlock()
}

// loop translates fsnotify events into classified Events. The done channel
// is checked in its own select before the blocking select on every
// iteration: a single select with both watcher.Events and done is subject to
// Go's random-case selection, so under a sustained flood of fsnotify events
// the done case can be starved indefinitely even though it's always ready.
// Checking it alone first guarantees shutdown wins that race.
func (w *Watcher) loop() {
	defer close(w.events)
	for {
		select {
		case <-w.done:
			return
		default:
		}

		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if shouldIgnorePath(ev.Name) || underNodeModules(ev.Name) {
				continue
			}
			if event, ok := w.classify(ev); ok {
				w.emit(event)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Error("watcher error: %v", err)
			}
		}
	}
}

func (w *Watcher) classify(ev fsnotify.Event) (Event, bool) {
	switch {
	case ev.Op&fsnotify.Write == fsnotify.Write:
		return Event{Path: ev.Name, Type: Change}, true

	case ev.Op&fsnotify.Create == fsnotify.Create:
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addDirRecursive(ev.Name)
			return Event{Path: ev.Name, Type: AddDir}, true
		}
		return Event{Path: ev.Name, Type: Add}, true

	case ev.Op&fsnotify.Remove == fsnotify.Remove, ev.Op&fsnotify.Rename == fsnotify.Rename:
		if w.knowsDir(ev.Name) {
			w.forgetDir(ev.Name)
			return Event{Path: ev.Name, Type: RemoveDir}, true
		}
		return Event{Path: ev.Name, Type: Remove}, true

	default:
		return Event{}, false
	}
}

func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

// Close stops the watcher. Safe to call once; a second call is a no-op.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	return w.fsw.Close()
}

func underNodeModules(path string) bool {
	return strings.Contains(filepath.ToSlash(path), "/node_modules/")
}

func shouldIgnoreDir(name string) bool {
	switch name {
	case ".git", "node_modules", "dist", "build", ".cache":
		return true
	default:
		return false
	}
}

// shouldIgnorePath filters editor swap/backup files that would otherwise
// trigger spurious reloads.
func shouldIgnorePath(path string) bool {
	base := filepath.Base(path)

	if shouldIgnoreDir(base) {
		return true
	}
	if strings.HasSuffix(base, ".swp") || strings.HasSuffix(base, ".swo") || strings.HasSuffix(base, ".swn") {
		return true
	}
	if strings.HasSuffix(base, "~") {
		return true
	}
	if strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}
	if strings.HasPrefix(base, ".#") {
		return true
	}
	return false
}
