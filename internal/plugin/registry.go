// Package plugin implements the action-plugin registry: discovery,
// validation, loading, initialization, and name resolution for the
// Go-native ".so" analogue of the original Node.js plugin mechanism.
package plugin

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"compressarr/internal/errs"
	"compressarr/internal/logging"
	"compressarr/pluginsdk"
)

// Registry discovers, loads, and initializes action plugins, then resolves
// action names against them for the job runner.
type Registry struct {
	hostVersion    Version
	hostAPIVersion int
	log            *slog.Logger

	mu           sync.Mutex
	byIdentifier map[string]*Plugin
	byLowerID    map[string]string   // translation table: misspelled/alias id -> canonical identifier
	nameIndex    map[string][]string // bare action name -> identifiers that contribute it
	initializing *Plugin
}

// NewRegistry constructs an empty Registry. hostVersion and hostAPIVersion
// are what the registry reports to plugins and what manifest engines
// ranges are checked against.
func NewRegistry(hostVersion Version, hostAPIVersion int, log *slog.Logger) *Registry {
	if log == nil {
		log = logging.NewNop()
	}
	return &Registry{
		hostVersion:    hostVersion,
		hostAPIVersion: hostAPIVersion,
		log:            log,
		byIdentifier:   make(map[string]*Plugin),
		byLowerID:      make(map[string]string),
		nameIndex:      make(map[string][]string),
	}
}

// LoadResult reports a load/validation failure for one candidate directory,
// for diagnostics only: the candidate is simply skipped.
type LoadResult struct {
	Dir string
	Err error
}

// LoadAll discovers candidates under searchPaths, validates and loads each
// one, then initializes every loaded plugin in discovery order (calling
// Init/Default with host). allowList, when non-empty, restricts which
// discovered plugins are loaded at all; disabledSet marks loaded plugins
// disabled without excluding them from the registry.
func (r *Registry) LoadAll(searchPaths []string, allowList, disabledSet []string, host pluginsdk.Host) []LoadResult {
	allow := toSet(allowList)
	disabled := toSet(disabledSet)

	var results []LoadResult
	var loaded []*Plugin

	for _, cand := range Discover(searchPaths) {
		plugin, err := r.loadCandidate(cand, allow, disabled)
		if err != nil {
			if err != errSkipped {
				results = append(results, LoadResult{Dir: cand.Dir, Err: err})
				r.log.Warn("plugin candidate skipped",
					logging.String(logging.FieldEventKind, "plugin_skip"),
					logging.String("dir", cand.Dir),
					logging.Error(err),
				)
			}
			continue
		}
		loaded = append(loaded, plugin)
	}

	for _, p := range loaded {
		r.initializePlugin(p, host)
	}
	return results
}

var errSkipped = fmt.Errorf("plugin candidate intentionally skipped")

func (r *Registry) loadCandidate(cand Candidate, allow, disabled map[string]bool) (*Plugin, error) {
	manifest, err := ReadManifest(cand.ManifestPath)
	if err != nil {
		return nil, &errs.PluginError{PluginID: cand.Dir, Reason: "read manifest", Err: err}
	}
	if err := manifest.Validate(); err != nil {
		return nil, &errs.PluginError{PluginID: manifest.Name, Reason: "validation failed", Err: err}
	}

	if len(allow) > 0 && !allow[manifest.Name] {
		return nil, errSkipped
	}

	r.mu.Lock()
	if _, exists := r.byIdentifier[manifest.Name]; exists {
		r.mu.Unlock()
		return nil, &errs.PluginError{PluginID: manifest.Name, Reason: "duplicate plugin identifier", Err: nil}
	}
	r.mu.Unlock()

	hostRange, err := ParseRange(manifest.Engines["compressarr"])
	if err != nil {
		return nil, &errs.PluginError{PluginID: manifest.Name, Reason: "bad engines.compressarr range", Err: err}
	}
	if !hostRange.Satisfies(r.hostVersion) {
		r.log.Warn("plugin host-version range does not cover running host",
			logging.String(logging.FieldPluginID, manifest.Name),
			logging.String("range", manifest.Engines["compressarr"]),
			logging.String("host_version", r.hostVersion.String()),
		)
	}
	if rt, ok := manifest.Engines["go"]; ok {
		if rtRange, err := ParseRange(rt); err == nil {
			// There is no Go-runtime "version" concept comparable to npm's node
			// engine; this check exists only so the warning path is exercised
			// when a plugin declares one. An all-satisfying range never warns.
			if !rtRange.Satisfies(Version{}) && rt != "*" {
				r.log.Warn("plugin declares a runtime engines range; compatibility is not enforced",
					logging.String(logging.FieldPluginID, manifest.Name),
					logging.String("range", rt),
				)
			}
		}
	}
	if manifest.DeclaresHostDependency() {
		r.log.Warn("plugin declares the host as a regular dependency",
			logging.String(logging.FieldPluginID, manifest.Name),
		)
	}

	mainPath := filepath.Join(cand.Dir, manifest.Main)
	init, err := openInitializer(mainPath)
	if err != nil {
		return nil, &errs.PluginError{PluginID: manifest.Name, Reason: "load main module", Err: err}
	}

	version, err := ParseVersion(manifest.Version)
	if err != nil {
		return nil, &errs.PluginError{PluginID: manifest.Name, Reason: "bad version", Err: err}
	}

	p := &Plugin{
		Identifier: manifest.Name,
		Scope:      manifest.Scope(),
		Path:       cand.Dir,
		Version:    version,
		HostRange:  hostRange,
		Main:       mainPath,
		Disabled:   disabled[manifest.Name],
		actions:    make(map[string]pluginsdk.ActionConstructor),
	}
	p.init = init

	r.mu.Lock()
	r.byIdentifier[p.Identifier] = p
	r.byLowerID[strings.ToLower(p.Identifier)] = p.Identifier
	r.mu.Unlock()

	return p, nil
}

func (r *Registry) initializePlugin(p *Plugin, host pluginsdk.Host) {
	r.mu.Lock()
	r.initializing = p
	r.mu.Unlock()

	if err := p.init(host); err != nil {
		r.log.Error("plugin initializer returned an error",
			logging.String(logging.FieldPluginID, p.Identifier),
			logging.Error(err),
		)
	}

	r.mu.Lock()
	r.initializing = nil
	for name := range p.actions {
		r.nameIndex[name] = append(r.nameIndex[name], p.Identifier)
	}
	r.mu.Unlock()
}

// AttachAction implements the registrar half of pluginsdk.Host.RegisterAction:
// it attributes the registration to whichever plugin is currently
// initializing. name may be self-qualified as "plugin-id.action" by the
// plugin itself; when the declared id in that prefix does not match the
// currently-initializing plugin's real identifier, the action is still
// registered (under its bare form) and the declared id is recorded in the
// translation table so lookups under the misspelled id still resolve.
func (r *Registry) AttachAction(name string, constructor pluginsdk.ActionConstructor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initializing == nil {
		return fmt.Errorf("plugin: action %q registered outside of any initializer", name)
	}

	bareName, declaredPluginID := name, ""
	if idx := strings.LastIndex(name, "."); idx > 0 {
		declaredPluginID, bareName = name[:idx], name[idx+1:]
	}

	r.initializing.RegisterAction(bareName, constructor)

	if declaredPluginID != "" && declaredPluginID != r.initializing.Identifier {
		r.byLowerID[strings.ToLower(declaredPluginID)] = r.initializing.Identifier
	}
	return nil
}

// Plugin returns the loaded plugin for identifier, consulting the
// translation table as a fallback.
func (r *Registry) Plugin(identifier string) (*Plugin, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byIdentifier[identifier]; ok {
		return p, true
	}
	if canonical, ok := r.byLowerID[strings.ToLower(identifier)]; ok {
		p, ok := r.byIdentifier[canonical]
		return p, ok
	}
	return nil, false
}

// Resolve looks up an action by bare name or "plugin-id.name". Disabled
// plugins are excluded from both forms.
func (r *Registry) Resolve(reference string) (*Plugin, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx := strings.LastIndex(reference, "."); idx > 0 {
		pluginID, action := reference[:idx], reference[idx+1:]
		canonical := pluginID
		if c, ok := r.byLowerID[strings.ToLower(pluginID)]; ok {
			canonical = c
		}
		p, ok := r.byIdentifier[canonical]
		if !ok {
			return nil, "", fmt.Errorf("plugin %q is not registered", pluginID)
		}
		if p.Disabled {
			return nil, "", fmt.Errorf("plugin %q is disabled", p.Identifier)
		}
		if _, ok := p.Action(action); !ok {
			return nil, "", fmt.Errorf("plugin %q has no action %q", p.Identifier, action)
		}
		return p, action, nil
	}

	var candidates []string
	for _, id := range r.nameIndex[reference] {
		p, ok := r.byIdentifier[id]
		if ok && !p.Disabled {
			candidates = append(candidates, id)
		}
	}
	switch len(candidates) {
	case 0:
		return nil, "", &errs.ResolutionError{Identifier: reference}
	case 1:
		return r.byIdentifier[candidates[0]], reference, nil
	default:
		sort.Strings(candidates)
		return nil, "", &errs.ResolutionError{Identifier: reference, Candidates: candidates}
	}
}

// Plugins returns every loaded plugin, sorted by identifier.
func (r *Registry) Plugins() []*Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Plugin, 0, len(r.byIdentifier))
	for _, p := range r.byIdentifier {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
