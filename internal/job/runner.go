package job

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"compressarr/internal/action"
	"compressarr/internal/errs"
	"compressarr/internal/eventbus"
	"compressarr/internal/events"
	"compressarr/internal/fileutil"
	"compressarr/internal/logging"
	"compressarr/pluginsdk"
)

// Runner is the handler for REGISTER_JOB: for each dispatched job it drives
// the ordered action pipeline to completion, abandonment, or cancellation.
type Runner struct {
	bus       *eventbus.Bus
	scheduler *Scheduler
	actions   []*action.Instance
	log       *slog.Logger
	actionLog map[string]*slog.Logger // per-action override, keyed by action.Instance.Name

	wg sync.WaitGroup

	mu      sync.Mutex
	running map[string]*runningJob
}

type runningJob struct {
	currentIdx int  // index into Runner.actions the job is currently executing, -1 between steps
	cancelled  bool // set by cancel() when it lands at currentIdx == -1, so run() does not start another action
}

// NewRunner constructs a Runner that drives actions, in configuration
// order, for every job the scheduler dispatches on bus. actionLevels maps a
// configured action's display name to a minimum log level ("debug",
// "warn", ...) that overrides log for messages logged on that action's
// behalf; an action absent from actionLevels logs at log's own level. The
// override filters in front of log's handler, so it can raise the threshold
// but does not let through records that handler itself drops.
func NewRunner(bus *eventbus.Bus, scheduler *Scheduler, actions []*action.Instance, log *slog.Logger, actionLevels map[string]string) *Runner {
	if log == nil {
		log = logging.NewNop()
	}
	r := &Runner{
		bus:       bus,
		scheduler: scheduler,
		actions:   actions,
		log:       log,
		actionLog: make(map[string]*slog.Logger, len(actionLevels)),
		running:   make(map[string]*runningJob),
	}
	for _, inst := range actions {
		if levelName, ok := actionLevels[inst.Name]; ok {
			r.actionLog[inst.Name] = logging.WithLevelOverride(log, logging.ParseLevel(levelName))
		}
	}
	r.bind()
	return r
}

// logFor returns the per-action override logger for actionName if one was
// configured, otherwise the runner's shared logger.
func (r *Runner) logFor(actionName string) *slog.Logger {
	if l, ok := r.actionLog[actionName]; ok {
		return l
	}
	return r.log
}

// mayProceed reports whether rj may start (or continue past) its next
// action for src. It combines three checks under one critical section:
//
//   - scheduler.IsActive(src): catches cancellation between pipeline steps,
//     when nothing replaces the r.running entry.
//   - r.running[src] == rj: scheduler.IsActive alone cannot tell a
//     cancelled run apart from a re-enqueued one at the same source path:
//     a cancel-then-re-enqueue (UPDATE_MEDIA) removes src from active and
//     republishes it before the cancelled goroutine has necessarily
//     noticed, so by the time that goroutine re-checks, src is active
//     again, just under a different runningJob. Pointer identity against
//     r.running catches exactly that case.
//   - !rj.cancelled: cancel() sets this when it observes currentIdx == -1
//     (between steps, nothing to Kill) so the in-flight "is there anything
//     to stop right now" decision made by cancel() is not lost by the time
//     run() reaches its next action boundary.
//
// admitNextAction runs the same three checks under r.mu in the critical
// section that publishes rj.currentIdx, which closes the window where
// cancel() reads currentIdx == -1 and returns without calling Kill just
// before run() sets currentIdx to the next action and starts it: that
// publication can no longer happen without first observing rj.cancelled.
func (r *Runner) mayProceed(src string, rj *runningJob) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scheduler.IsActive(src) && r.running[src] == rj && !rj.cancelled
}

// admitNextAction performs mayProceed's check and, only if it passes,
// publishes idx as rj.currentIdx, in one critical section. Doing both under
// the same lock closes the window a separately-sequenced check-then-set
// would leave open: without this, cancel() could observe currentIdx == -1
// and return without calling Kill in the gap between the check passing and
// idx being published, and the action started right after would then have
// no pending Kill to ever stop it.
func (r *Runner) admitNextAction(src string, rj *runningJob, idx int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.scheduler.IsActive(src) || r.running[src] != rj || rj.cancelled {
		return false
	}
	rj.currentIdx = idx
	return true
}

func (r *Runner) bind() {
	r.bus.Subscribe(eventbus.RegisterJob, func(payload any) {
		p, ok := payload.(events.RegisterJob)
		if !ok {
			return
		}
		r.start(p.SourcePath, p.Config)
	})
	r.bus.Subscribe(eventbus.UnregisterJob, func(payload any) {
		p, ok := payload.(events.UnregisterJob)
		if !ok {
			return
		}
		r.cancel(p.SourcePath)
	})
}

// cancel narrows kill() to the single action instance currently owning src,
// per the narrowed-cancellation redesign: it does not broadcast to every
// configured action. If it lands between actions (currentIdx == -1) there
// is nothing to Kill yet, so it tombstones rj.cancelled instead: run()
// checks that flag, under the same mutex it next publishes currentIdx
// under, before starting another action.
func (r *Runner) cancel(src string) {
	r.mu.Lock()
	rj, ok := r.running[src]
	var idx int
	if ok {
		idx = rj.currentIdx
		if idx < 0 {
			rj.cancelled = true
		}
	}
	r.mu.Unlock()
	if !ok || idx < 0 || idx >= len(r.actions) {
		return
	}
	if err := r.actions[idx].Kill(context.Background(), src); err != nil {
		r.logFor(r.actions[idx].Name).Warn("action kill returned an error",
			logging.String(logging.FieldAction, r.actions[idx].Name),
			logging.String(logging.FieldJobID, src),
			logging.Error(err),
		)
	}
}

// Wait blocks until every currently-running job goroutine has returned.
func (r *Runner) Wait() { r.wg.Wait() }

func (r *Runner) start(src string, cfg pluginsdk.JobConfig) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(src, cfg)
	}()
}

func (r *Runner) run(src string, cfg pluginsdk.JobConfig) {
	ctx := context.Background()

	rj := &runningJob{currentIdx: -1}
	r.mu.Lock()
	r.running[src] = rj
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		// Only clear the entry this goroutine itself installed: a
		// cancel-then-re-enqueue for src may have already replaced it with a
		// newer runningJob by the time this goroutine unwinds, and that
		// newer job's entry must survive so it can still be cancelled.
		if r.running[src] == rj {
			delete(r.running, src)
		}
		r.mu.Unlock()
	}()

	alloc := newDestinationAllocator(cfg.TempPrefix)
	j := pluginsdk.NewJob(cfg.Name, cfg.SourcePath, cfg.TempPrefix, alloc.next)

	for idx, inst := range r.actions {
		if !r.admitNextAction(src, rj, idx) {
			return
		}

		next, err := inst.Start(ctx, j, src)

		r.mu.Lock()
		rj.currentIdx = -1
		r.mu.Unlock()

		if err != nil {
			actionLog := r.logFor(inst.Name)
			if errs.IsKilled(err) {
				actionLog.Debug("job killed",
					logging.String(logging.FieldAction, inst.Name),
					logging.String(logging.FieldJobID, src),
				)
				return
			}
			actionLog.Error("action failed, job abandoned",
				logging.String(logging.FieldAction, inst.Name),
				logging.String(logging.FieldJobID, src),
				logging.Error(err),
			)
			return
		}
		j = next
	}

	if !r.mayProceed(src, rj) {
		return
	}
	if j.CurrentSource != cfg.SourcePath {
		if err := moveOrCopyFile(r.log, j.CurrentSource, cfg.SourcePath); err != nil {
			r.log.Error("failed to move final artifact into place",
				logging.String(logging.FieldJobID, src),
				logging.Error(err),
			)
			return
		}
	}
	alloc.cleanup()
	_ = os.RemoveAll(cfg.TempPrefix)

	r.bus.Publish(eventbus.PublishJob, events.PublishJob{SourcePath: src})
}

// moveOrCopyFile renames source to target, falling back to a verified
// copy-then-delete when rename fails across a filesystem boundary.
func moveOrCopyFile(log *slog.Logger, source, target string) error {
	renameErr := os.Rename(source, target)
	if renameErr == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(renameErr, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return renameErr
	}

	if err := fileutil.CopyFileVerified(source, target); err != nil {
		return fmt.Errorf("copy final artifact across filesystems: %w", err)
	}
	if err := os.Remove(source); err != nil {
		log.Warn("failed to remove source artifact after cross-filesystem copy",
			logging.Error(err),
		)
	}
	return nil
}

// destinationAllocator assigns the smallest unused "<temp-prefix>-<i>"
// path. Per the pre-increment redesign, it tests candidate i before use and
// always advances past it, whether or not it was free, so a later call
// within the same job never re-tests an index that was already occupied.
//
// "<temp-prefix>-<i>" is a sibling of temp-prefix, not a child of it, so
// os.RemoveAll(tempPrefix) alone never reaches these intermediates. allocated
// records every path handed out so cleanup can remove each of them
// individually once the job settles.
type destinationAllocator struct {
	mu         sync.Mutex
	tempPrefix string
	counter    int
	allocated  []string
}

func newDestinationAllocator(tempPrefix string) *destinationAllocator {
	return &destinationAllocator{tempPrefix: tempPrefix, counter: 1}
}

func (a *destinationAllocator) candidateAt(i int, ext string) string {
	path := fmt.Sprintf("%s-%d", a.tempPrefix, i)
	if ext != "" {
		path += "." + strings.TrimLeft(ext, ".")
	}
	return path
}

func (a *destinationAllocator) next(ext string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		candidate := a.candidateAt(a.counter, ext)
		a.counter++
		_, err := os.Stat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			if err := os.MkdirAll(filepath.Dir(candidate), 0o755); err != nil {
				return "", fmt.Errorf("ensure destination directory: %w", err)
			}
			a.allocated = append(a.allocated, candidate)
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat destination candidate: %w", err)
		}
		// candidate exists; loop advances to the next index.
	}
}

// cleanup best-effort removes every destination next ever allocated. The
// job's final destination has already been moved into place by the time
// this runs, so removing it again is a harmless no-op; intermediate
// destinations superseded by a later pipeline step are the ones this
// actually reclaims, since os.RemoveAll(tempPrefix) never reaches them.
func (a *destinationAllocator) cleanup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, path := range a.allocated {
		_ = os.Remove(path)
	}
}
