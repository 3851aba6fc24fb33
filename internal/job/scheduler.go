// Package job implements the job scheduler and runner: the pending/active
// admission tables, the advance() promotion loop, and the per-job pipeline
// driver that executes configured ActionInstances in order.
package job

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"compressarr/internal/eventbus"
	"compressarr/internal/events"
	"compressarr/internal/logging"
	"compressarr/internal/textutil"
	"compressarr/pluginsdk"
)

// Scheduler owns the pending and active admission tables. Every mutation
// runs inside a bus handler and under mu; the UPDATE_MEDIA and
// UNREGISTER_MEDIA handlers release mu around their UNREGISTER_JOB publish
// and take it again to advance. The bus's own synchronous dispatch and this
// mutex together are the mutual-exclusion boundary over pending/active.
type Scheduler struct {
	mu        sync.Mutex
	bus       *eventbus.Bus
	maxActive int
	jobRoot   string
	log       *slog.Logger

	pendingOrder []string
	pending      map[string]pluginsdk.JobConfig
	active       map[string]pluginsdk.JobConfig

	shuttingDown bool
}

// New constructs a Scheduler bound to bus, with room for at most maxActive
// concurrently active jobs. jobRoot is the directory under which temp
// prefixes are created.
func New(bus *eventbus.Bus, jobRoot string, maxActive int, log *slog.Logger) *Scheduler {
	if maxActive < 1 {
		maxActive = 1
	}
	if log == nil {
		log = logging.NewNop()
	}
	s := &Scheduler{
		bus:       bus,
		maxActive: maxActive,
		jobRoot:   jobRoot,
		log:       log,
		pending:   make(map[string]pluginsdk.JobConfig),
		active:    make(map[string]pluginsdk.JobConfig),
	}
	s.bind()
	return s
}

func (s *Scheduler) bind() {
	s.bus.Subscribe(eventbus.RegisterMedia, func(payload any) {
		m, ok := payload.(events.Media)
		if !ok {
			return
		}
		s.onRegisterMedia(m.LibraryRoot, m.RelPath)
	})
	s.bus.Subscribe(eventbus.UpdateMedia, func(payload any) {
		m, ok := payload.(events.Media)
		if !ok {
			return
		}
		s.onUpdateMedia(m.LibraryRoot, m.RelPath)
	})
	s.bus.Subscribe(eventbus.UnregisterMedia, func(payload any) {
		m, ok := payload.(events.Media)
		if !ok {
			return
		}
		s.onUnregisterMedia(m.LibraryRoot, m.RelPath)
	})
	s.bus.Subscribe(eventbus.PublishJob, func(payload any) {
		p, ok := payload.(events.PublishJob)
		if !ok {
			return
		}
		s.onPublishJob(p.SourcePath)
	})
	s.bus.Subscribe(eventbus.AdmitJob, func(payload any) {
		a, ok := payload.(events.AdmitJob)
		if !ok {
			return
		}
		s.mu.Lock()
		s.admitLocked(a.SourcePath, a.Config)
		s.advanceLocked()
		s.mu.Unlock()
	})
}

func deriveJobConfig(jobRoot, libraryRoot, relPath string) (src string, cfg pluginsdk.JobConfig) {
	src = filepath.Join(libraryRoot, relPath)
	stem := strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath))
	safeStem := textutil.SanitizeFileName(stem)
	if safeStem == "" {
		safeStem = textutil.SanitizeToken(stem)
	}
	tempPrefix := filepath.Join(jobRoot, filepath.Dir(relPath), safeStem)
	cfg = pluginsdk.JobConfig{Name: stem, SourcePath: src, TempPrefix: tempPrefix}
	return src, cfg
}

func (s *Scheduler) onRegisterMedia(libraryRoot, relPath string) {
	src, cfg := deriveJobConfig(s.jobRoot, libraryRoot, relPath)
	s.mu.Lock()
	s.admitLocked(src, cfg)
	s.advanceLocked()
	s.mu.Unlock()
}

func (s *Scheduler) onUpdateMedia(libraryRoot, relPath string) {
	src, cfg := deriveJobConfig(s.jobRoot, libraryRoot, relPath)
	s.mu.Lock()
	s.admitLocked(src, cfg)
	delete(s.active, src)
	s.mu.Unlock()
	s.bus.Publish(eventbus.UnregisterJob, events.UnregisterJob{SourcePath: src})
	s.mu.Lock()
	s.advanceLocked()
	s.mu.Unlock()
}

func (s *Scheduler) onUnregisterMedia(libraryRoot, relPath string) {
	src := filepath.Join(libraryRoot, relPath)
	s.mu.Lock()
	s.removePendingLocked(src)
	delete(s.active, src)
	s.mu.Unlock()
	s.bus.Publish(eventbus.UnregisterJob, events.UnregisterJob{SourcePath: src})
	s.mu.Lock()
	s.advanceLocked()
	s.mu.Unlock()
}

func (s *Scheduler) onPublishJob(src string) {
	s.mu.Lock()
	s.removePendingLocked(src)
	delete(s.active, src)
	s.advanceLocked()
	s.mu.Unlock()
}

// admitLocked inserts cfg into pending. An existing entry for src is
// overwritten and keeps its FIFO position; a new src is appended.
func (s *Scheduler) admitLocked(src string, cfg pluginsdk.JobConfig) {
	if _, exists := s.pending[src]; !exists {
		s.pendingOrder = append(s.pendingOrder, src)
	}
	s.pending[src] = cfg
}

func (s *Scheduler) removePendingLocked(src string) {
	if _, ok := s.pending[src]; !ok {
		return
	}
	delete(s.pending, src)
	for i, k := range s.pendingOrder {
		if k == src {
			s.pendingOrder = append(s.pendingOrder[:i], s.pendingOrder[i+1:]...)
			break
		}
	}
}

// advanceLocked promotes pending entries into active until either table is
// exhausted, looping rather than recursing so it runs in bounded stack
// space under the scheduler's own mutex.
func (s *Scheduler) advanceLocked() {
	if s.shuttingDown {
		return
	}
	for len(s.pendingOrder) > 0 && len(s.active) < s.maxActive {
		src := s.pendingOrder[0]
		s.pendingOrder = s.pendingOrder[1:]
		cfg, ok := s.pending[src]
		delete(s.pending, src)
		if !ok {
			continue
		}
		s.active[src] = cfg
		s.bus.Publish(eventbus.RegisterJob, events.RegisterJob{SourcePath: src, Config: cfg})
	}
}

// IsActive reports whether src is currently in the active table. The
// runner re-checks this before every pipeline step to honor cancellation
// ordering.
func (s *Scheduler) IsActive(src string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[src]
	return ok
}

// Snapshot returns the current sizes of pending and active, for
// diagnostics and tests.
func (s *Scheduler) Snapshot() (pending, active int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingOrder), len(s.active)
}

// Shutdown publishes UNREGISTER_JOB for every active entry, drains pending,
// and marks the scheduler closed so no further advance() promotes new work.
// It does not itself wait for runner goroutines to settle; callers compose
// that with the runner's own WaitGroup.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.shuttingDown = true
	activeSrcs := make([]string, 0, len(s.active))
	for src := range s.active {
		activeSrcs = append(activeSrcs, src)
	}
	s.pendingOrder = nil
	s.pending = make(map[string]pluginsdk.JobConfig)
	s.mu.Unlock()

	for _, src := range activeSrcs {
		s.bus.Publish(eventbus.UnregisterJob, events.UnregisterJob{SourcePath: src})
	}
}
