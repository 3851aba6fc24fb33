package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"compressarr/internal/action"
	"compressarr/internal/config"
	"compressarr/internal/errs"
	"compressarr/internal/eventbus"
	"compressarr/internal/hostapi"
	"compressarr/internal/job"
	"compressarr/internal/library"
	"compressarr/internal/library/fsnotifywatch"
	"compressarr/internal/logging"
	"compressarr/internal/mediaprobe"
	"compressarr/internal/plugin"
	"compressarr/internal/textutil"
	"compressarr/internal/userpaths"
	"compressarr/pluginsdk"
)

const (
	hostVersion    = "1.0.0"
	hostAPIVersion = 1

	pluginPathEnvVar = "COMPRESSARR_PLUGIN_PATH"

	shutdownGrace = 5 * time.Second
)

// daemon holds every long-lived collaborator booted for one process run.
type daemon struct {
	log       *slog.Logger
	bus       *eventbus.Bus
	lock      *userpaths.InstanceLock
	libraries *library.Manager
	scheduler *job.Scheduler
	runner    *job.Runner
}

// boot parses configuration and wires every component in boot order
// (plugin registry, then library manager, then launch-complete), returning
// a daemon ready to Run. Any failure here is a fatal startup error: no
// signal handling is installed and the process exits non-zero without
// attempting graceful shutdown.
func boot(flags cliFlags) (*daemon, error) {
	storagePath := flags.storagePath
	if storagePath == "" {
		def, err := userpaths.DefaultRoot()
		if err != nil {
			return nil, fmt.Errorf("resolve default storage root: %w", err)
		}
		storagePath = def
	}
	storage, err := userpaths.Resolve(storagePath)
	if err != nil {
		return nil, err
	}
	root := userpaths.Derive(storage, flags.jobPath)
	if err := root.EnsureDirectories(); err != nil {
		return nil, err
	}

	lock := userpaths.NewInstanceLock(root)
	ok, err := lock.Acquire()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, userpaths.ErrAlreadyRunning
	}

	cfg, _, err := config.Load(root.ConfigPath)
	if err != nil {
		lock.Release()
		return nil, &errs.ConfigError{Reason: "load configuration", Err: err}
	}
	cfg.ApplyOverrides(config.Overrides{
		Instances:  flags.instances,
		JobRoot:    flags.jobPath,
		PluginPath: flags.pluginPath,
		Debug:      flags.debug,
		Color:      flags.color,
	})
	if dup := cfg.DuplicateLibraryName(); dup != "" {
		lock.Release()
		return nil, &errs.ConfigError{Reason: fmt.Sprintf("duplicate library name %q", dup)}
	}

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("init logger: %w", err)
	}
	sessionID := uuid.NewString()
	logger = logger.With(logging.String(logging.FieldCorrelationID, sessionID))

	bus := eventbus.New()
	host := hostapi.New(bus, hostVersion, hostAPIVersion)

	hostSemVer, err := plugin.ParseVersion(hostVersion)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("parse host version: %w", err)
	}
	registry := plugin.NewRegistry(hostSemVer, hostAPIVersion, logger)
	hostapi.BindActionRegistry(bus, registry, logger)

	searchPaths := plugin.SearchPaths(root.JobActions, os.Getenv(pluginPathEnvVar), cfg.PluginPath)
	loadResults := registry.LoadAll(searchPaths, cfg.Plugins, cfg.DisabledPlugins, host)
	for _, res := range loadResults {
		logger.Warn("plugin candidate rejected",
			logging.String("dir", res.Dir),
			logging.Error(res.Err),
		)
	}

	instances := resolveActionInstances(registry, cfg.JobActions, host, logger)

	scheduler := job.New(bus, root.JobRoot, cfg.Instances, logger)
	runner := job.NewRunner(bus, scheduler, instances, logger, cfg.ActionLogLevels)

	libManager := library.New(bus, mediaprobe.New(), fsnotifywatch.New, logger)
	libManager.Load(cfg.Libraries, cfg.DisabledLibraries)

	printStartupSummary(registry, libManager)

	bus.Publish(eventbus.LaunchComplete, nil)
	logger.Info("compressarrd launch complete",
		logging.Int("instances", cfg.Instances),
		logging.String(logging.FieldComponent, "boot"),
	)

	return &daemon{
		log:       logger,
		bus:       bus,
		lock:      lock,
		libraries: libManager,
		scheduler: scheduler,
		runner:    runner,
	}, nil
}

// resolveActionInstances builds one action.Instance per configured
// jobAction entry, in configuration order, skipping (with a warning) any
// entry whose identifier does not resolve to exactly one enabled plugin
// action. A bad entry is dropped, not fatal to the whole process.
func resolveActionInstances(registry *plugin.Registry, entries []config.JobActionEntry, host pluginsdk.Host, log *slog.Logger) []*action.Instance {
	instances := make([]*action.Instance, 0, len(entries))
	for _, entry := range entries {
		p, actionName, err := registry.Resolve(entry.JobAction)
		if err != nil {
			log.Warn("job action skipped: resolution failed",
				logging.String("jobAction", entry.JobAction),
				logging.Error(err),
			)
			continue
		}
		ctor, ok := p.Action(actionName)
		if !ok {
			log.Warn("job action skipped: plugin has no such action",
				logging.String(logging.FieldPluginID, p.Identifier),
				logging.String("jobAction", entry.JobAction),
			)
			continue
		}
		inst, err := action.New(entry.Name, ctor, entry.Extra, host)
		if err != nil {
			log.Warn("job action skipped: constructor failed",
				logging.String("jobAction", entry.JobAction),
				logging.Error(err),
			)
			continue
		}
		instances = append(instances, inst)
	}
	return instances
}

func printStartupSummary(registry *plugin.Registry, libs *library.Manager) {
	titler := cases.Title(language.English)

	pluginRows := make([][]string, 0)
	for _, p := range registry.Plugins() {
		status := textutil.Ternary(p.Disabled, "disabled", "enabled")
		pluginRows = append(pluginRows, []string{p.Identifier, p.Version.String(), status})
	}
	fmt.Println(renderTable(
		[]string{"Plugin", "Version", "Status"},
		pluginRows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft},
	))

	libRows := make([][]string, 0)
	for _, lib := range libs.Libraries() {
		status := textutil.Ternary(lib.Disabled, "disabled", "watching")
		libRows = append(libRows, []string{titler.String(lib.Name), lib.Root, status})
	}
	fmt.Println(renderTable(
		[]string{"Library", "Root", "Status"},
		libRows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft},
	))
}

// Run installs signal handling and blocks until SIGINT or SIGTERM arrives,
// then drains the scheduler and waits up to shutdownGrace for in-flight
// jobs to settle before returning an exit code.
func (d *daemon) Run() int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	d.log.Info("shutdown signal received", logging.String("signal", sig.String()))

	d.bus.Publish(eventbus.Shutdown, nil)
	d.scheduler.Shutdown()

	done := make(chan struct{})
	go func() {
		d.runner.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info("all jobs settled, exiting cleanly")
	case <-time.After(shutdownGrace):
		d.log.Warn("shutdown grace period elapsed, exiting with jobs still in flight")
	}

	signum := 0
	switch sig {
	case syscall.SIGINT:
		signum = int(syscall.SIGINT)
	case syscall.SIGTERM:
		signum = int(syscall.SIGTERM)
	}
	return 128 + signum
}

// Close releases the single-instance lock and stops every library watcher.
// Safe to call even if boot failed partway through.
func (d *daemon) Close() {
	if d.libraries != nil {
		d.libraries.Close()
	}
	if d.lock != nil {
		d.lock.Release()
	}
}
