package library

import (
	"log/slog"
	"os"
	"sort"
	"sync"

	"compressarr/internal/config"
	"compressarr/internal/eventbus"
	"compressarr/internal/logging"
	"compressarr/internal/mediaprobe"
)

// Manager owns every configured Library for the process lifetime.
type Manager struct {
	bus      *eventbus.Bus
	prober   mediaprobe.Prober
	newWatch WatcherFactory
	log      *slog.Logger

	mu        sync.Mutex
	libraries map[string]*Library
}

// New constructs a Manager. newWatch is the Watcher constructor to use for
// every enabled library; production callers pass fsnotifywatch.New.
func New(bus *eventbus.Bus, prober mediaprobe.Prober, newWatch WatcherFactory, log *slog.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	if prober == nil {
		prober = mediaprobe.New()
	}
	return &Manager{
		bus:       bus,
		prober:    prober,
		newWatch:  newWatch,
		log:       logging.NewComponentLogger(log, "library"),
		libraries: make(map[string]*Library),
	}
}

// Load instantiates a Library for every entry whose root exists, skipping
// nonexistent roots silently and rejecting duplicate names. disabledSet
// marks libraries that are constructed but never started.
func (m *Manager) Load(entries []config.LibraryEntry, disabledSet []string) {
	disabled := make(map[string]struct{}, len(disabledSet))
	for _, name := range disabledSet {
		disabled[name] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, entry := range entries {
		if _, exists := m.libraries[entry.Name]; exists {
			m.log.Warn("duplicate library name rejected", logging.String("name", entry.Name))
			continue
		}
		info, err := os.Stat(entry.Library)
		if err != nil || !info.IsDir() {
			m.log.Warn("configured library root does not exist, skipping",
				logging.String("name", entry.Name),
				logging.String(logging.FieldLibraryRoot, entry.Library),
			)
			continue
		}

		_, isDisabled := disabled[entry.Name]
		var w Watcher
		if !isDisabled {
			w, err = m.newWatch(entry.Library)
			if err != nil {
				m.log.Warn("failed to start watcher for library, skipping",
					logging.String("name", entry.Name),
					logging.String(logging.FieldLibraryRoot, entry.Library),
					logging.Error(err),
				)
				continue
			}
		}

		lib := newLibrary(entry.Name, entry.Library, isDisabled, w, m.prober, m.bus, m.log)
		m.libraries[entry.Name] = lib
		lib.Start()
	}
}

// Libraries returns every constructed library, sorted by name.
func (m *Manager) Libraries() []*Library {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Library, 0, len(m.libraries))
	for _, lib := range m.libraries {
		out = append(out, lib)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close stops every watcher. Errors from individual libraries are logged,
// not returned, since shutdown must proceed regardless.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lib := range m.libraries {
		if err := lib.Stop(); err != nil {
			m.log.Warn("error stopping library watcher",
				logging.String("name", lib.Name),
				logging.Error(err),
			)
		}
	}
}
