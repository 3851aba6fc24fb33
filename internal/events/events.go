// Package events defines the payload types carried by the internal event
// bus. Kinds themselves live in eventbus; payload shapes live here so both
// the host-facing API and the scheduler/registry subscribers can import
// them without creating a cycle between those two packages.
package events

import "compressarr/pluginsdk"

// RegisterAction is the eventbus.RegisterAction payload.
type RegisterAction struct {
	Name        string
	Constructor pluginsdk.ActionConstructor
}

// AdmitJob is the eventbus.AdmitJob payload: a plugin (via pluginsdk.Host)
// asking the scheduler to insert a job directly into its pending table,
// bypassing library-driven media discovery.
type AdmitJob struct {
	SourcePath string
	Config     pluginsdk.JobConfig
}

// RegisterJob is the eventbus.RegisterJob payload: the scheduler's advance()
// handing an admitted job to the runner for execution.
type RegisterJob struct {
	SourcePath string
	Config     pluginsdk.JobConfig
}

// UnregisterJob is the eventbus.UnregisterJob payload.
type UnregisterJob struct {
	SourcePath string
}

// PublishJob is the eventbus.PublishJob payload.
type PublishJob struct {
	SourcePath string
}

// Media is shared by RegisterMedia, UpdateMedia, and UnregisterMedia.
type Media struct {
	LibraryRoot string
	RelPath     string
}
