// Package fsnotifywatch is the concrete library.Watcher backing the daemon:
// a recursive, debounced adapter over github.com/fsnotify/fsnotify.
package fsnotifywatch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"compressarr/internal/library"
)

const debounce = 300 * time.Millisecond

// Watcher implements library.Watcher on top of an fsnotify.Watcher, seeded
// recursively over root and kept in sync as subdirectories are created.
type Watcher struct {
	root    string
	fsw     *fsnotify.Watcher
	events  chan library.WatchEvent
	errs    chan error
	closeCh chan struct{}

	mu      sync.Mutex
	timers  map[string]*time.Timer
}

// New constructs a Watcher rooted at root, following symlinks once while
// seeding the initial watch set and ignoring dotfiles thereafter.
func New(root string) (library.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotifywatch: new watcher: %w", err)
	}

	w := &Watcher{
		root:    root,
		fsw:     fsw,
		events:  make(chan library.WatchEvent, 64),
		errs:    make(chan error, 16),
		closeCh: make(chan struct{}),
		timers:  make(map[string]*time.Timer),
	}

	if err := w.seed(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

// seed walks root recursively, adding a watch for every directory.
// Symlinks are followed once (the target is walked but symlinks found
// inside it are not followed again).
func (w *Watcher) seed(root string) error {
	return w.walk(root, true)
}

func (w *Watcher) walk(dir string, followSymlinks bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("fsnotifywatch: read dir %s: %w", dir, err)
	}
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("fsnotifywatch: watch %s: %w", dir, err)
	}

	for _, entry := range entries {
		if isDotfile(entry.Name()) {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		info := entry
		if info.Type()&fs.ModeSymlink != 0 {
			if !followSymlinks {
				continue
			}
			target, err := filepath.EvalSymlinks(full)
			if err != nil {
				continue
			}
			stat, err := os.Stat(target)
			if err != nil || !stat.IsDir() {
				continue
			}
			if err := w.walk(target, false); err != nil {
				return err
			}
			continue
		}
		if info.IsDir() {
			if err := w.walk(full, followSymlinks); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			case <-w.closeCh:
				return
			}
		case <-w.closeCh:
			return
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if isDotfile(filepath.Base(ev.Name)) {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		info, err := os.Stat(ev.Name)
		if err == nil && info.IsDir() {
			_ = w.walk(ev.Name, false)
			return
		}
		w.emitDebounced(ev.Name, library.Added)
	case ev.Op&fsnotify.Write != 0:
		w.emitDebounced(ev.Name, library.Changed)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.cancelPending(ev.Name)
		w.emit(library.WatchEvent{Kind: library.Removed, Path: ev.Name})
	}
}

// emitDebounced coalesces bursts of Write events for the same path (the
// "wait for write-completion" requirement) into a single emission 300ms
// after the last one observed. A stat failure at fire time means the file
// was removed mid-burst; that settles as Removed instead of being dropped.
// A burst that began with a Create still settles as Added; later writes
// only push its deadline back.
func (w *Watcher) emitDebounced(path string, kind library.WatchEventKind) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		if kind == library.Changed {
			t.Reset(debounce)
			return
		}
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		if _, err := os.Stat(path); err != nil {
			w.emit(library.WatchEvent{Kind: library.Removed, Path: path})
			return
		}
		w.emit(library.WatchEvent{Kind: kind, Path: path})
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) emit(ev library.WatchEvent) {
	select {
	case w.events <- ev:
	case <-w.closeCh:
	}
}

func (w *Watcher) Events() <-chan library.WatchEvent { return w.events }
func (w *Watcher) Errors() <-chan error              { return w.errs }

func (w *Watcher) Close() error {
	select {
	case <-w.closeCh:
		return nil
	default:
		close(w.closeCh)
	}

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()

	return w.fsw.Close()
}

func isDotfile(name string) bool {
	return strings.HasPrefix(name, ".")
}
