package job

import (
	"testing"

	"compressarr/internal/eventbus"
	"compressarr/internal/events"
	"compressarr/pluginsdk"
)

func TestRegisterMediaAdmitsAndDispatchesWithinLimit(t *testing.T) {
	bus := eventbus.New()
	var dispatched []string
	bus.Subscribe(eventbus.RegisterJob, func(payload any) {
		dispatched = append(dispatched, payload.(events.RegisterJob).SourcePath)
	})

	s := New(bus, "/jobs", 1, nil)
	bus.Publish(eventbus.RegisterMedia, events.Media{LibraryRoot: "/lib", RelPath: "a.mkv"})

	if len(dispatched) != 1 || dispatched[0] != "/lib/a.mkv" {
		t.Fatalf("got %+v", dispatched)
	}
	pending, active := s.Snapshot()
	if pending != 0 || active != 1 {
		t.Fatalf("got pending=%d active=%d, want 0/1", pending, active)
	}
}

func TestAdvanceHoldsBackBeyondInstanceLimit(t *testing.T) {
	bus := eventbus.New()
	var dispatched []string
	bus.Subscribe(eventbus.RegisterJob, func(payload any) {
		dispatched = append(dispatched, payload.(events.RegisterJob).SourcePath)
	})

	s := New(bus, "/jobs", 1, nil)
	bus.Publish(eventbus.RegisterMedia, events.Media{LibraryRoot: "/lib", RelPath: "a.mkv"})
	bus.Publish(eventbus.RegisterMedia, events.Media{LibraryRoot: "/lib", RelPath: "b.mkv"})

	if len(dispatched) != 1 {
		t.Fatalf("got %d dispatches, want 1 (second held in pending)", len(dispatched))
	}
	pending, active := s.Snapshot()
	if pending != 1 || active != 1 {
		t.Fatalf("got pending=%d active=%d, want 1/1", pending, active)
	}
}

func TestPublishJobFreesSlotForNextPending(t *testing.T) {
	bus := eventbus.New()
	var dispatched []string
	bus.Subscribe(eventbus.RegisterJob, func(payload any) {
		dispatched = append(dispatched, payload.(events.RegisterJob).SourcePath)
	})

	s := New(bus, "/jobs", 1, nil)
	bus.Publish(eventbus.RegisterMedia, events.Media{LibraryRoot: "/lib", RelPath: "a.mkv"})
	bus.Publish(eventbus.RegisterMedia, events.Media{LibraryRoot: "/lib", RelPath: "b.mkv"})
	bus.Publish(eventbus.PublishJob, events.PublishJob{SourcePath: "/lib/a.mkv"})

	if len(dispatched) != 2 || dispatched[1] != "/lib/b.mkv" {
		t.Fatalf("got %+v", dispatched)
	}
	if !s.IsActive("/lib/b.mkv") {
		t.Fatal("expected b.mkv to be promoted to active")
	}
	if s.IsActive("/lib/a.mkv") {
		t.Fatal("expected a.mkv to have been removed from active")
	}
}

func TestUnregisterMediaDropsFromBothTablesAndPublishesUnregisterJob(t *testing.T) {
	bus := eventbus.New()
	var unregistered []string
	bus.Subscribe(eventbus.UnregisterJob, func(payload any) {
		unregistered = append(unregistered, payload.(events.UnregisterJob).SourcePath)
	})

	s := New(bus, "/jobs", 1, nil)
	bus.Publish(eventbus.RegisterMedia, events.Media{LibraryRoot: "/lib", RelPath: "a.mkv"})
	bus.Publish(eventbus.UnregisterMedia, events.Media{LibraryRoot: "/lib", RelPath: "a.mkv"})

	if len(unregistered) != 1 || unregistered[0] != "/lib/a.mkv" {
		t.Fatalf("got %+v", unregistered)
	}
	if s.IsActive("/lib/a.mkv") {
		t.Fatal("expected a.mkv to be removed from active")
	}
}

func TestUpdateMediaCancelsActiveAndReadmits(t *testing.T) {
	bus := eventbus.New()
	var unregistered []string
	bus.Subscribe(eventbus.UnregisterJob, func(payload any) {
		unregistered = append(unregistered, payload.(events.UnregisterJob).SourcePath)
	})

	s := New(bus, "/jobs", 1, nil)
	bus.Publish(eventbus.RegisterMedia, events.Media{LibraryRoot: "/lib", RelPath: "a.mkv"})
	bus.Publish(eventbus.UpdateMedia, events.Media{LibraryRoot: "/lib", RelPath: "a.mkv"})

	if len(unregistered) != 1 {
		t.Fatalf("got %d UNREGISTER_JOB publishes, want 1", len(unregistered))
	}
	if !s.IsActive("/lib/a.mkv") {
		t.Fatal("expected the re-admitted job to advance back into active")
	}
}

func TestAdmitJobFromHostInsertsDirectlyIntoPending(t *testing.T) {
	bus := eventbus.New()
	var dispatched []string
	bus.Subscribe(eventbus.RegisterJob, func(payload any) {
		dispatched = append(dispatched, payload.(events.RegisterJob).SourcePath)
	})

	New(bus, "/jobs", 1, nil)
	bus.Publish(eventbus.AdmitJob, events.AdmitJob{
		SourcePath: "/lib/plugin-submitted.mkv",
		Config:     pluginsdk.JobConfig{Name: "plugin-submitted", SourcePath: "/lib/plugin-submitted.mkv"},
	})

	if len(dispatched) != 1 {
		t.Fatalf("got %+v", dispatched)
	}
}

func TestShutdownPublishesUnregisterForEveryActiveEntryAndDrainsPending(t *testing.T) {
	bus := eventbus.New()
	var unregistered []string
	bus.Subscribe(eventbus.UnregisterJob, func(payload any) {
		unregistered = append(unregistered, payload.(events.UnregisterJob).SourcePath)
	})

	s := New(bus, "/jobs", 1, nil)
	bus.Publish(eventbus.RegisterMedia, events.Media{LibraryRoot: "/lib", RelPath: "a.mkv"})
	bus.Publish(eventbus.RegisterMedia, events.Media{LibraryRoot: "/lib", RelPath: "b.mkv"})

	s.Shutdown()

	if len(unregistered) != 1 || unregistered[0] != "/lib/a.mkv" {
		t.Fatalf("got %+v, want UNREGISTER_JOB for the one active entry", unregistered)
	}
	pending, active := s.Snapshot()
	if pending != 0 {
		t.Fatalf("got pending=%d, want drained to 0", pending)
	}
	_ = active
}

func TestDeriveJobConfig(t *testing.T) {
	src, cfg := deriveJobConfig("/s/jobs", "/lib", "sub/movie.mkv")
	if src != "/lib/sub/movie.mkv" {
		t.Fatalf("got src %q", src)
	}
	if cfg.Name != "movie" {
		t.Fatalf("got name %q, want movie", cfg.Name)
	}
	if cfg.TempPrefix != "/s/jobs/sub/movie" {
		t.Fatalf("got tempPrefix %q", cfg.TempPrefix)
	}
}
