// Package errs defines the error kinds the core raises, each implementing
// ErrorKind so callers can classify an error without importing every
// concrete type.
package errs

import (
	"errors"
	"fmt"
)

// Classifier lets an error declare its kind for routing decisions.
type Classifier interface {
	ErrorKind() string
}

// Kind returns the classification of err, or "" if it does not implement Classifier.
func Kind(err error) string {
	var classifier Classifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	return ""
}

// ConfigError reports a malformed configuration file or a fatal startup
// configuration problem (e.g. a duplicate library name).
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("config: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error  { return e.Err }
func (e *ConfigError) ErrorKind() string { return "config" }

// PluginError reports a per-plugin discovery, validation, load, or
// initialization failure. The offending plugin is dropped; others proceed.
type PluginError struct {
	PluginID string
	Reason   string
	Err      error
}

func (e *PluginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plugin %s: %s: %v", e.PluginID, e.Reason, e.Err)
	}
	return fmt.Sprintf("plugin %s: %s", e.PluginID, e.Reason)
}

func (e *PluginError) Unwrap() error  { return e.Err }
func (e *PluginError) ErrorKind() string { return "plugin" }

// ResolutionError reports that a configured job-action identifier resolved
// to zero or more than one enabled plugin.
type ResolutionError struct {
	Identifier string
	Candidates []string
}

func (e *ResolutionError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("resolve action %q: no enabled plugin contributes it", e.Identifier)
	}
	return fmt.Sprintf("resolve action %q: ambiguous, qualify as one of %v", e.Identifier, e.Candidates)
}

func (e *ResolutionError) ErrorKind() string { return "resolution" }

// ActionError wraps an error raised by an ActionInstance's Start. The job is
// abandoned without publish.
type ActionError struct {
	Action string
	JobID  string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action %s: job %s: %v", e.Action, e.JobID, e.Err)
}

func (e *ActionError) Unwrap() error  { return e.Err }
func (e *ActionError) ErrorKind() string { return "action" }

// KilledError is the sentinel an ActionInstance's Start settles with when
// Kill was invoked for the same job identifier. It is not a failure: the
// runner logs it at debug level and returns silently.
type KilledError struct {
	JobID string
}

func (e *KilledError) Error() string  { return fmt.Sprintf("job %s: killed", e.JobID) }
func (e *KilledError) ErrorKind() string { return "killed" }

// IsKilled reports whether err is (or wraps) a KilledError.
func IsKilled(err error) bool {
	var killed *KilledError
	return errors.As(err, &killed)
}

// ProbeError reports that the media-probe collaborator could not produce
// usable info for a path. Library manager treats this identically to "not a
// media file": the watcher event is dropped silently.
type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string  { return fmt.Sprintf("probe %s: %v", e.Path, e.Err) }
func (e *ProbeError) Unwrap() error  { return e.Err }
func (e *ProbeError) ErrorKind() string { return "probe" }
