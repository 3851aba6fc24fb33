package job

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"compressarr/internal/action"
	"compressarr/internal/eventbus"
	"compressarr/internal/events"
	"compressarr/pluginsdk"
)

type scriptedAction struct {
	mu       sync.Mutex
	started  chan struct{}
	release  chan error
	killed   chan string
	startOut func(job *pluginsdk.Job) (*pluginsdk.Job, error)
}

func newScriptedAction() *scriptedAction {
	return &scriptedAction{
		started: make(chan struct{}, 8),
		release: make(chan error, 8),
		killed:  make(chan string, 8),
	}
}

func (a *scriptedAction) Start(ctx context.Context, job *pluginsdk.Job) (*pluginsdk.Job, error) {
	a.started <- struct{}{}
	if a.startOut != nil {
		return a.startOut(job)
	}
	err := <-a.release
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (a *scriptedAction) Kill(ctx context.Context, jobIdentifier string) error {
	a.killed <- jobIdentifier
	a.release <- pluginsdk.ErrKilled
	return nil
}

func instanceFor(t *testing.T, name string, a *scriptedAction) *action.Instance {
	t.Helper()
	constructor := func(_ string, _ map[string]any, _ pluginsdk.Host) (pluginsdk.Action, error) {
		return a, nil
	}
	inst, err := action.New(name, constructor, nil, nil)
	if err != nil {
		t.Fatalf("action.New returned error: %v", err)
	}
	return inst
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for action to start")
	}
}

func TestRunnerCompletesPipelineAndPublishesJob(t *testing.T) {
	bus := eventbus.New()
	s := New(bus, t.TempDir(), 1, nil)

	a1 := newScriptedAction()
	a2 := newScriptedAction()
	runner := NewRunner(bus, s, []*action.Instance{instanceFor(t, "first", a1), instanceFor(t, "second", a2)}, nil, nil)

	var published []string
	bus.Subscribe(eventbus.PublishJob, func(payload any) {
		published = append(published, payload.(events.PublishJob).SourcePath)
	})

	src := filepath.Join(t.TempDir(), "movie.mkv")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	cfg := pluginsdk.JobConfig{Name: "movie", SourcePath: src, TempPrefix: filepath.Join(t.TempDir(), "movie")}

	s.mu.Lock()
	s.active[src] = cfg
	s.mu.Unlock()

	bus.Publish(eventbus.RegisterJob, events.RegisterJob{SourcePath: src, Config: cfg})

	waitFor(t, a1.started)
	a1.release <- nil
	waitFor(t, a2.started)
	a2.release <- nil

	runner.Wait()

	if len(published) != 1 || published[0] != src {
		t.Fatalf("got %+v, want PUBLISH_JOB for %s", published, src)
	}
}

func TestRunnerAbandonsJobOnActionError(t *testing.T) {
	bus := eventbus.New()
	s := New(bus, t.TempDir(), 1, nil)

	a1 := newScriptedAction()
	runner := NewRunner(bus, s, []*action.Instance{instanceFor(t, "first", a1)}, nil, nil)

	var published []string
	bus.Subscribe(eventbus.PublishJob, func(payload any) {
		published = append(published, payload.(events.PublishJob).SourcePath)
	})

	src := "/lib/movie.mkv"
	cfg := pluginsdk.JobConfig{Name: "movie", SourcePath: src, TempPrefix: "/jobs/movie"}
	s.mu.Lock()
	s.active[src] = cfg
	s.mu.Unlock()

	bus.Publish(eventbus.RegisterJob, events.RegisterJob{SourcePath: src, Config: cfg})
	waitFor(t, a1.started)
	a1.release <- errors.New("boom")

	runner.Wait()

	if len(published) != 0 {
		t.Fatalf("got %+v, want no publish for an abandoned job", published)
	}
}

func TestRunnerCancelKillsOnlyCurrentActionInstance(t *testing.T) {
	bus := eventbus.New()
	s := New(bus, t.TempDir(), 1, nil)

	a1 := newScriptedAction()
	a2 := newScriptedAction()
	runner := NewRunner(bus, s, []*action.Instance{instanceFor(t, "first", a1), instanceFor(t, "second", a2)}, nil, nil)

	src := "/lib/movie.mkv"
	cfg := pluginsdk.JobConfig{Name: "movie", SourcePath: src, TempPrefix: "/jobs/movie"}
	s.mu.Lock()
	s.active[src] = cfg
	s.mu.Unlock()

	bus.Publish(eventbus.RegisterJob, events.RegisterJob{SourcePath: src, Config: cfg})
	waitFor(t, a1.started)

	s.mu.Lock()
	delete(s.active, src)
	s.mu.Unlock()
	bus.Publish(eventbus.UnregisterJob, events.UnregisterJob{SourcePath: src})

	select {
	case got := <-a1.killed:
		if got != src {
			t.Fatalf("got killed id %q, want %q", got, src)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for kill on the currently-owning action")
	}

	runner.Wait()

	select {
	case <-a2.started:
		t.Fatal("expected second action to never start once the first was killed")
	default:
	}
}

func TestRunDeferDoesNotEvictAReenqueuedJobsEntry(t *testing.T) {
	bus := eventbus.New()
	s := New(bus, t.TempDir(), 1, nil)

	a1 := newScriptedAction()
	runner := NewRunner(bus, s, []*action.Instance{instanceFor(t, "first", a1)}, nil, nil)

	src := "/lib/movie.mkv"
	oldCfg := pluginsdk.JobConfig{Name: "movie", SourcePath: src, TempPrefix: filepath.Join(t.TempDir(), "movie")}
	s.mu.Lock()
	s.active[src] = oldCfg
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		runner.run(src, oldCfg)
		close(done)
	}()
	waitFor(t, a1.started)

	// Simulate the UPDATE_MEDIA cancel-then-re-enqueue sequence installing a
	// new runningJob for the same source path while the old run is still
	// inside its action's Start call.
	newRj := &runningJob{currentIdx: 0}
	runner.mu.Lock()
	runner.running[src] = newRj
	runner.mu.Unlock()

	// Let the old run's Start return as if it had completed normally. Its
	// deferred cleanup must see it is no longer the installed entry for src
	// and leave the re-enqueued job's entry alone.
	a1.release <- nil
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the stale run to return")
	}

	runner.mu.Lock()
	got := runner.running[src]
	runner.mu.Unlock()
	if got != newRj {
		t.Fatalf("stale run's cleanup evicted the re-enqueued job's entry: got %v, want %v", got, newRj)
	}

	// The re-enqueued job must still be cancellable: this must not be a
	// silent no-op because the running-map entry survived.
	runner.cancel(src)
	select {
	case killedID := <-a1.killed:
		if killedID != src {
			t.Fatalf("got killed id %q, want %q", killedID, src)
		}
	default:
		t.Fatal("expected cancel to still find and kill the re-enqueued job's action")
	}
}

func TestCancelBetweenStepsTombstonesRatherThanDroppingSilently(t *testing.T) {
	bus := eventbus.New()
	s := New(bus, t.TempDir(), 1, nil)

	a1 := newScriptedAction()
	runner := NewRunner(bus, s, []*action.Instance{instanceFor(t, "first", a1)}, nil, nil)

	src := "/lib/movie.mkv"
	rj := &runningJob{currentIdx: -1}
	runner.mu.Lock()
	runner.running[src] = rj
	runner.mu.Unlock()

	// cancel() lands exactly between pipeline steps: nothing is in flight to
	// Kill, so it must not silently do nothing.
	runner.cancel(src)

	select {
	case <-a1.killed:
		t.Fatal("expected no Kill call: no action was in flight")
	default:
	}

	runner.mu.Lock()
	tombstoned := rj.cancelled
	runner.mu.Unlock()
	if !tombstoned {
		t.Fatal("expected cancel landing at currentIdx == -1 to tombstone the runningJob")
	}

	// The next action boundary must now refuse to start, instead of
	// launching an action with no pending Kill to ever stop it.
	if runner.admitNextAction(src, rj, 0) {
		t.Fatal("expected admitNextAction to refuse after a between-steps cancel")
	}
}

func TestNewRunnerBuildsOverrideLoggerOnlyForConfiguredActions(t *testing.T) {
	bus := eventbus.New()
	s := New(bus, t.TempDir(), 1, nil)

	a1 := newScriptedAction()
	a2 := newScriptedAction()
	runner := NewRunner(bus, s,
		[]*action.Instance{instanceFor(t, "first", a1), instanceFor(t, "second", a2)},
		nil,
		map[string]string{"first": "debug"},
	)

	if _, ok := runner.actionLog["first"]; !ok {
		t.Fatal("expected an override logger for the action named in actionLevels")
	}
	if _, ok := runner.actionLog["second"]; ok {
		t.Fatal("expected no override logger for an action absent from actionLevels")
	}
	if got := runner.logFor("first"); got == runner.log {
		t.Fatal("expected logFor to return the override logger, not the shared one")
	}
	if got := runner.logFor("second"); got != runner.log {
		t.Fatal("expected logFor to fall back to the shared logger")
	}
}

func TestDestinationAllocatorPreIncrementsPastOccupiedCandidates(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "movie")
	if err := os.WriteFile(prefix+"-1", []byte("x"), 0o644); err != nil {
		t.Fatalf("seed occupied candidate: %v", err)
	}

	alloc := newDestinationAllocator(prefix)
	got, err := alloc.next("")
	if err != nil {
		t.Fatalf("next returned error: %v", err)
	}
	if got != prefix+"-2" {
		t.Fatalf("got %q, want %s-2", got, prefix)
	}

	second, err := alloc.next("mkv")
	if err != nil {
		t.Fatalf("next returned error: %v", err)
	}
	if second != prefix+"-3.mkv" {
		t.Fatalf("got %q, want %s-3.mkv", second, prefix)
	}
}

func TestDestinationAllocatorCleanupRemovesEverySiblingItAllocated(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "movie")

	alloc := newDestinationAllocator(prefix)
	first, err := alloc.next("")
	if err != nil {
		t.Fatalf("next returned error: %v", err)
	}
	second, err := alloc.next("mkv")
	if err != nil {
		t.Fatalf("next returned error: %v", err)
	}
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("seed allocated destination: %v", err)
		}
	}

	alloc.cleanup()

	for _, path := range []string{first, second} {
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("expected %q removed by cleanup, stat err: %v", path, err)
		}
	}
}

// TestRunRemovesASupersededIntermediateOnSuccess exercises a 3-step pipeline
// where the first action's output is superseded by the second before the
// final move, the gap a bare os.RemoveAll(tempPrefix) cannot close since
// "<temp-prefix>-<i>" siblings of tempPrefix, not children of it.
func TestRunRemovesASupersededIntermediateOnSuccess(t *testing.T) {
	bus := eventbus.New()
	s := New(bus, t.TempDir(), 1, nil)

	a1 := newScriptedAction()
	a2 := newScriptedAction()
	a3 := newScriptedAction()
	var firstStage string
	a1.startOut = func(j *pluginsdk.Job) (*pluginsdk.Job, error) {
		dest, err := j.NextDestination("")
		if err != nil {
			t.Fatalf("NextDestination: %v", err)
		}
		firstStage = dest
		if err := os.WriteFile(dest, []byte("stage1"), 0o644); err != nil {
			t.Fatalf("write intermediate: %v", err)
		}
		j.CurrentSource = dest
		return j, nil
	}
	a2.startOut = func(j *pluginsdk.Job) (*pluginsdk.Job, error) {
		dest, err := j.NextDestination("")
		if err != nil {
			t.Fatalf("NextDestination: %v", err)
		}
		if err := os.WriteFile(dest, []byte("stage2"), 0o644); err != nil {
			t.Fatalf("write intermediate: %v", err)
		}
		// stage1's file is superseded here but, unlike a real action,
		// deliberately left on disk to prove cleanup reaches it anyway.
		j.CurrentSource = dest
		return j, nil
	}
	a3.startOut = func(j *pluginsdk.Job) (*pluginsdk.Job, error) { return j, nil }

	runner := NewRunner(bus, s,
		[]*action.Instance{instanceFor(t, "first", a1), instanceFor(t, "second", a2), instanceFor(t, "third", a3)},
		nil, nil,
	)

	src := filepath.Join(t.TempDir(), "movie.mkv")
	if err := os.WriteFile(src, []byte("data"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	cfg := pluginsdk.JobConfig{Name: "movie", SourcePath: src, TempPrefix: filepath.Join(t.TempDir(), "movie")}
	s.mu.Lock()
	s.active[src] = cfg
	s.mu.Unlock()

	bus.Publish(eventbus.RegisterJob, events.RegisterJob{SourcePath: src, Config: cfg})
	runner.Wait()

	if firstStage == "" {
		t.Fatal("expected first action to allocate an intermediate destination")
	}
	if _, err := os.Stat(firstStage); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected superseded intermediate %q removed after the job settled, stat err: %v", firstStage, err)
	}
}
