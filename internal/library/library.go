// Package library implements the library manager: per-root filesystem
// watches that turn raw watcher events into probed media add/change/remove
// notifications on the internal event bus.
package library

import (
	"log/slog"
	"path/filepath"

	"compressarr/internal/errs"
	"compressarr/internal/eventbus"
	"compressarr/internal/events"
	"compressarr/internal/logging"
	"compressarr/internal/mediaprobe"
)

// WatchEventKind classifies a raw filesystem-watch notification.
type WatchEventKind int

const (
	Added WatchEventKind = iota
	Changed
	Removed
)

// WatchEvent is one notification from a Watcher: an absolute path plus what
// happened to it.
type WatchEvent struct {
	Kind WatchEventKind
	Path string
}

// Watcher is the filesystem-watch primitive, an external collaborator.
// fsnotifywatch provides the concrete adapter used in production; tests
// substitute a channel-backed fake.
type Watcher interface {
	Events() <-chan WatchEvent
	Errors() <-chan error
	Close() error
}

// WatcherFactory constructs a Watcher rooted at root. Swappable for tests.
type WatcherFactory func(root string) (Watcher, error)

// Library is one configured, watched root.
type Library struct {
	Name     string
	Root     string
	Disabled bool

	watcher Watcher
	prober  mediaprobe.Prober
	bus     *eventbus.Bus
	log     *slog.Logger
	done    chan struct{}
}

func newLibrary(name, root string, disabled bool, watcher Watcher, prober mediaprobe.Prober, bus *eventbus.Bus, log *slog.Logger) *Library {
	if log == nil {
		log = logging.NewNop()
	}
	return &Library{
		Name:     name,
		Root:     root,
		Disabled: disabled,
		watcher:  watcher,
		prober:   prober,
		bus:      bus,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start begins consuming watcher events on a background goroutine. Disabled
// libraries are constructed but never started.
func (l *Library) Start() {
	if l.Disabled || l.watcher == nil {
		return
	}
	go l.run()
}

// Stop closes the underlying watcher, terminating the consumer goroutine.
func (l *Library) Stop() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}

func (l *Library) run() {
	for {
		select {
		case ev, ok := <-l.watcher.Events():
			if !ok {
				return
			}
			l.handle(ev)
		case err, ok := <-l.watcher.Errors():
			if !ok {
				return
			}
			l.log.Warn("library watcher error",
				logging.String(logging.FieldLibraryRoot, l.Root),
				logging.Error(err),
			)
		}
	}
}

func (l *Library) handle(ev WatchEvent) {
	rel, err := filepath.Rel(l.Root, ev.Path)
	if err != nil {
		l.log.Warn("watch event path is not under library root",
			logging.String(logging.FieldLibraryRoot, l.Root),
			logging.String(logging.FieldRelPath, ev.Path),
		)
		return
	}

	if ev.Kind == Removed {
		l.bus.Publish(eventbus.UnregisterMedia, events.Media{LibraryRoot: l.Root, RelPath: rel})
		return
	}

	info, ok, err := l.prober.Probe(ev.Path)
	if err != nil {
		l.log.Debug("media probe failed, event dropped",
			logging.String(logging.FieldRelPath, rel),
			logging.Error(&errs.ProbeError{Path: ev.Path, Err: err}),
		)
		return
	}
	if !ok || info == nil {
		return
	}

	switch ev.Kind {
	case Added:
		l.bus.Publish(eventbus.RegisterMedia, events.Media{LibraryRoot: l.Root, RelPath: rel})
	case Changed:
		l.bus.Publish(eventbus.UpdateMedia, events.Media{LibraryRoot: l.Root, RelPath: rel})
	}
}
