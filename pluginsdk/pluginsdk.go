// Package pluginsdk is the contract external plugin modules import. A
// plugin is built with `go build -buildmode=plugin` and exports an Init
// function (or a Default variable of the same type) that receives a Host
// handle and registers the actions it contributes.
//
// This package intentionally has no dependency on the rest of the
// compressarr module: a plugin's go.mod only ever needs pluginsdk, so the
// host and a plugin can be versioned and built independently.
package pluginsdk

import (
	"context"
	"errors"
)

// Host is the handle passed to a plugin's initializer and, transitively, to
// every ActionConstructor it calls. All methods are thin republishers onto
// the host's internal event bus.
type Host interface {
	// HostVersion returns the host's semantic version string.
	HostVersion() string
	// HostAPIVersion returns the host API version. Plugins compare this with
	// `>=` against their own declared minimum.
	HostAPIVersion() int

	// RegisterAction contributes a named action constructor. Call during Init.
	RegisterAction(name string, constructor ActionConstructor)

	// RegisterJob inserts a job config for sourcePath into the scheduler's
	// pending table.
	RegisterJob(sourcePath string, cfg JobConfig)
	// UnregisterJob asks the scheduler (and any in-flight runner) to drop
	// sourcePath.
	UnregisterJob(sourcePath string)
	// PublishJob signals that sourcePath's pipeline has completed.
	PublishJob(sourcePath string)

	// RegisterMedia, UpdateMedia, and UnregisterMedia are exposed for plugins
	// that themselves discover media (most hosts call these internally from
	// the library manager; a plugin rarely needs them directly).
	RegisterMedia(libraryRoot, relPath string)
	UpdateMedia(libraryRoot, relPath string)
	UnregisterMedia(libraryRoot, relPath string)

	// OnLaunchComplete registers a callback invoked once, after the plugin
	// registry and library manager have both finished booting.
	OnLaunchComplete(func())
	// OnShutdown registers a callback invoked once, when the host begins
	// shutting down.
	OnShutdown(func())
}

// Init is the symbol name the plugin loader looks up first.
//
//	func Init(host pluginsdk.Host) error { ... }
//
// Default is the fallback symbol name, used when a plugin module exposes no
// direct Init export.
const (
	InitSymbol    = "Init"
	DefaultSymbol = "Default"
)

// Initializer is the function signature both Init and Default must satisfy.
type Initializer func(host Host) error

// JobConfig is the immutable record a plugin (or the host's own library
// manager) constructs when admitting a job into the pending table.
type JobConfig struct {
	Name       string
	SourcePath string
	TempPrefix string
}

// ActionConstructor builds an Action instance once, at startup, from its
// per-action config block and a Host handle.
type ActionConstructor func(name string, config map[string]any, host Host) (Action, error)

// Action is a single pipeline stage an ActionInstance wraps. Start may
// suspend; Kill must be idempotent and must cause any outstanding Start for
// the same job identifier to settle with ErrKilled.
type Action interface {
	Start(ctx context.Context, job *Job) (*Job, error)
	Kill(ctx context.Context, jobIdentifier string) error
}

// ErrKilled is the sentinel Start should return (wrapped or bare) when Kill
// has been called for the job's identifier.
var ErrKilled = errors.New("job killed")

// Job is the mutable per-file context threaded through the action pipeline.
type Job struct {
	Name          string
	SourcePath    string
	TempPrefix    string
	CurrentSource string

	next func(ext string) (string, error)
}

// NewJob constructs a Job ready for its first action, wiring the
// destination allocator the host provides.
func NewJob(name, sourcePath, tempPrefix string, next func(ext string) (string, error)) *Job {
	return &Job{
		Name:          name,
		SourcePath:    sourcePath,
		TempPrefix:    tempPrefix,
		CurrentSource: sourcePath,
		next:          next,
	}
}

// NextDestination allocates the next available temp-prefix-relative path,
// appending ext (with any leading dots stripped) if non-empty.
func (j *Job) NextDestination(ext string) (string, error) {
	if j.next == nil {
		return "", errors.New("pluginsdk: job has no destination allocator")
	}
	return j.next(ext)
}
