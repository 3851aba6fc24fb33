// Package hostapi implements pluginsdk.Host, the handle passed to every
// plugin initializer and, transitively, to every action constructor it
// calls. Every method is a thin republisher onto the core's internal event
// bus; the bus's own subscribers (the plugin registry, the job scheduler)
// carry out the actual work.
package hostapi

import (
	"compressarr/internal/eventbus"
	"compressarr/internal/events"
	"compressarr/pluginsdk"
)

// ActionRegistrar is the plugin registry's half of action registration: it
// attributes a RegisterAction call arriving on the bus to whichever plugin
// is currently being initialized.
type ActionRegistrar interface {
	AttachAction(name string, constructor pluginsdk.ActionConstructor) error
}

// Host is the concrete pluginsdk.Host every plugin in the process shares.
type Host struct {
	bus            *eventbus.Bus
	hostVersion    string
	hostAPIVersion int
}

// New constructs a Host bound to bus, reporting hostVersion/hostAPIVersion
// to every plugin that asks.
func New(bus *eventbus.Bus, hostVersion string, hostAPIVersion int) *Host {
	return &Host{bus: bus, hostVersion: hostVersion, hostAPIVersion: hostAPIVersion}
}

func (h *Host) HostVersion() string { return h.hostVersion }

func (h *Host) HostAPIVersion() int { return h.hostAPIVersion }

func (h *Host) RegisterAction(name string, constructor pluginsdk.ActionConstructor) {
	h.bus.Publish(eventbus.RegisterAction, events.RegisterAction{Name: name, Constructor: constructor})
}

func (h *Host) RegisterJob(sourcePath string, cfg pluginsdk.JobConfig) {
	h.bus.Publish(eventbus.AdmitJob, events.AdmitJob{SourcePath: sourcePath, Config: cfg})
}

func (h *Host) UnregisterJob(sourcePath string) {
	h.bus.Publish(eventbus.UnregisterJob, events.UnregisterJob{SourcePath: sourcePath})
}

func (h *Host) PublishJob(sourcePath string) {
	h.bus.Publish(eventbus.PublishJob, events.PublishJob{SourcePath: sourcePath})
}

func (h *Host) RegisterMedia(libraryRoot, relPath string) {
	h.bus.Publish(eventbus.RegisterMedia, events.Media{LibraryRoot: libraryRoot, RelPath: relPath})
}

func (h *Host) UpdateMedia(libraryRoot, relPath string) {
	h.bus.Publish(eventbus.UpdateMedia, events.Media{LibraryRoot: libraryRoot, RelPath: relPath})
}

func (h *Host) UnregisterMedia(libraryRoot, relPath string) {
	h.bus.Publish(eventbus.UnregisterMedia, events.Media{LibraryRoot: libraryRoot, RelPath: relPath})
}

func (h *Host) OnLaunchComplete(fn func()) {
	h.bus.Subscribe(eventbus.LaunchComplete, func(any) { fn() })
}

func (h *Host) OnShutdown(fn func()) {
	h.bus.Subscribe(eventbus.Shutdown, func(any) { fn() })
}

// BindActionRegistry subscribes registrar to RegisterAction events so every
// plugin's RegisterAction call is attributed to the plugin that is
// currently initializing.
func BindActionRegistry(bus *eventbus.Bus, registrar ActionRegistrar, log errorLogger) {
	bus.Subscribe(eventbus.RegisterAction, func(payload any) {
		p, ok := payload.(events.RegisterAction)
		if !ok {
			return
		}
		if err := registrar.AttachAction(p.Name, p.Constructor); err != nil && log != nil {
			log.Warn(err.Error())
		}
	})
}

// errorLogger is the minimal logging surface BindActionRegistry needs,
// satisfied by *slog.Logger without importing log/slog here.
type errorLogger interface {
	Warn(msg string, args ...any)
}
