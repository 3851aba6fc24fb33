// Package config loads compressarr's on-disk configuration file. The
// format and location (<storage>/config.json) are an external interface
// that must be honored verbatim, so this package uses encoding/json rather
// than github.com/pelletier/go-toml/v2 (see DESIGN.md for that disposition).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LibraryEntry configures one watched library root.
type LibraryEntry struct {
	Library string `json:"library"`
	Name    string `json:"name"`
}

// JobActionEntry configures one pipeline step. Fields beyond JobAction and
// Name are action-specific and are carried in Extra so the core never needs
// to know what a given plugin expects.
type JobActionEntry struct {
	JobAction string         `json:"jobAction"`
	Name      string         `json:"name"`
	Extra     map[string]any `json:"-"`
}

// UnmarshalJSON decodes the known fields into their struct members and
// stashes every other top-level key into Extra.
func (e *JobActionEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["jobAction"].(string); ok {
		e.JobAction = v
	}
	if v, ok := raw["name"].(string); ok {
		e.Name = v
	}
	delete(raw, "jobAction")
	delete(raw, "name")
	e.Extra = raw
	return nil
}

// Config is compressarr's process-wide configuration, resolved from
// <storage>/config.json plus CLI overrides.
type Config struct {
	Libraries         []LibraryEntry    `json:"libraries"`
	JobActions        []JobActionEntry  `json:"jobActions"`
	Plugins           []string          `json:"plugins"`
	DisabledPlugins   []string          `json:"disabledPlugins"`
	DisabledLibraries []string          `json:"disabledLibraries"`
	ActionLogLevels   map[string]string `json:"actionLogLevels"`

	// Instances, JobRoot, PluginPath, LogLevel, LogFormat, LogDir, and Color
	// are not part of the JSON schema; they hold Default's values and the CLI
	// overrides applied after the file is parsed. No CLI flag sets LogFormat
	// or LogDir.
	Instances  int    `json:"-"`
	JobRoot    string `json:"-"`
	PluginPath string `json:"-"`
	LogLevel   string `json:"-"`
	LogFormat  string `json:"-"`
	LogDir     string `json:"-"`
	Color      bool   `json:"-"`
}

// Default returns a Config with every field at its documented default.
func Default() Config {
	return Config{
		Instances: 1,
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load reads and parses path. A missing file is tolerated (an empty,
// defaulted Config is returned with existed=false); an unparseable file is
// fatal.
func Load(path string) (cfg Config, existed bool, err error) {
	cfg = Default()

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if errors.Is(readErr, fs.ErrNotExist) {
			return cfg, false, nil
		}
		return Config{}, false, fmt.Errorf("read config %s: %w", path, readErr)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, false, &jsonParseError{path: path, err: err}
	}
	return cfg, true, nil
}

type jsonParseError struct {
	path string
	err  error
}

func (e *jsonParseError) Error() string {
	return fmt.Sprintf("parse config %s: %v", e.path, e.err)
}

func (e *jsonParseError) Unwrap() error     { return e.err }
func (e *jsonParseError) ErrorKind() string { return "config" }

// ApplyOverrides layers CLI-flag values onto cfg: the file is parsed
// first, and flags win over whatever it set.
type Overrides struct {
	Instances  int
	JobRoot    string
	PluginPath string
	Debug      bool
	Color      bool
	LogDir     string
}

func (c *Config) ApplyOverrides(o Overrides) {
	if o.Instances > 0 {
		c.Instances = o.Instances
	}
	if o.JobRoot != "" {
		c.JobRoot = o.JobRoot
	}
	if o.PluginPath != "" {
		c.PluginPath = o.PluginPath
	}
	if o.Debug {
		c.LogLevel = "debug"
	}
	c.Color = o.Color
	if o.LogDir != "" {
		c.LogDir = o.LogDir
	}
}

// DuplicateLibraryName returns the first library name that appears more than
// once, or "" if all names are unique.
func (c *Config) DuplicateLibraryName() string {
	seen := make(map[string]struct{}, len(c.Libraries))
	for _, lib := range c.Libraries {
		name := strings.TrimSpace(lib.Name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			return name
		}
		seen[name] = struct{}{}
	}
	return ""
}

// EnsureDirectories creates the job root on disk; it is a thin wrapper kept
// for callers that only have a Config (most boot code should prefer
// userpaths.Root.EnsureDirectories, which also covers persist/ and
// job actions/).
func (c *Config) EnsureDirectories() error {
	if c.JobRoot == "" {
		return nil
	}
	if err := os.MkdirAll(c.JobRoot, 0o755); err != nil {
		return fmt.Errorf("create job root %q: %w", c.JobRoot, err)
	}
	return nil
}

// ExpandPath resolves a leading "~" against the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
