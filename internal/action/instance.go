// Package action wraps a plugin's action-constructor output into the
// long-lived worker the job runner drives one step at a time.
package action

import (
	"context"
	"errors"
	"fmt"

	"compressarr/internal/errs"
	"compressarr/pluginsdk"
)

// Instance is a worker built from a plugin's action-constructor, a display
// name, its per-action config block, and a handle to the host API.
// Instances are created once at startup, in configuration order, and live
// for the process lifetime.
type Instance struct {
	Name string // the jobAction entry's display name

	action pluginsdk.Action
}

// New constructs an Instance by invoking constructor with config and host.
func New(name string, constructor pluginsdk.ActionConstructor, config map[string]any, host pluginsdk.Host) (*Instance, error) {
	built, err := constructor(name, config, host)
	if err != nil {
		return nil, fmt.Errorf("construct action %s: %w", name, err)
	}
	return &Instance{Name: name, action: built}, nil
}

// Start runs this step for job, translating the plugin's bare ErrKilled
// sentinel into the core's own classified KilledError.
func (i *Instance) Start(ctx context.Context, job *pluginsdk.Job, jobIdentifier string) (*pluginsdk.Job, error) {
	next, err := i.action.Start(ctx, job)
	if err != nil {
		if errors.Is(err, pluginsdk.ErrKilled) {
			return nil, &errs.KilledError{JobID: jobIdentifier}
		}
		return nil, &errs.ActionError{Action: i.Name, JobID: jobIdentifier, Err: err}
	}
	return next, nil
}

// Kill asks the action to terminate any outstanding Start for jobIdentifier.
func (i *Instance) Kill(ctx context.Context, jobIdentifier string) error {
	if err := i.action.Kill(ctx, jobIdentifier); err != nil {
		return fmt.Errorf("kill action %s for job %s: %w", i.Name, jobIdentifier, err)
	}
	return nil
}
