package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// identifierPattern matches ((@scope)/)?compressarr-<slug>.
var identifierPattern = regexp.MustCompile(`^(@[a-z0-9-][a-z0-9-._]*/)?compressarr-[a-z0-9-]+$`)

// Sentinel is the keyword every plugin manifest must declare.
const Sentinel = "compressarr-plugin"

// Manifest is the decoded contents of a plugin's plugin.json.
type Manifest struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Keywords         []string          `json:"keywords"`
	Main             string            `json:"main"`
	Engines          map[string]string `json:"engines"`
	PeerDependencies map[string]string `json:"peerDependencies"`
	Dependencies     map[string]string `json:"dependencies"`

	// Disabled is set by the registry from configuration, never decoded.
	Disabled bool `json:"-"`
}

// ReadManifest decodes the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// Normalize promotes a host entry in peerDependencies into engines when
// engines.compressarr is missing.
func (m *Manifest) Normalize() {
	if m.Engines == nil {
		m.Engines = map[string]string{}
	}
	if _, ok := m.Engines["compressarr"]; !ok {
		if rng, ok := m.PeerDependencies["compressarr"]; ok {
			m.Engines["compressarr"] = rng
		}
	}
}

// HasKeyword reports whether keywords contains word.
func (m *Manifest) HasKeyword(word string) bool {
	for _, k := range m.Keywords {
		if k == word {
			return true
		}
	}
	return false
}

// DeclaresHostDependency reports whether the plugin lists the host itself as
// a regular (non-peer) dependency, a bundled-host anti-pattern.
func (m *Manifest) DeclaresHostDependency() bool {
	_, ok := m.Dependencies["compressarr"]
	return ok
}

// Validate checks that a manifest is acceptable to load at all. It does not
// check engines compatibility (that's a post-load, non-fatal warning); it
// only checks the fields a candidate must have to be considered.
func (m *Manifest) Validate() error {
	if !identifierPattern.MatchString(m.Name) {
		return fmt.Errorf("name %q does not match plugin-identifier pattern", m.Name)
	}
	if !m.HasKeyword(Sentinel) {
		return fmt.Errorf("keywords missing sentinel %q", Sentinel)
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("version is empty")
	}
	m.Normalize()
	if strings.TrimSpace(m.Engines["compressarr"]) == "" {
		return fmt.Errorf("no engines.compressarr range and no peerDependencies.compressarr to promote")
	}
	if strings.TrimSpace(m.Main) == "" {
		return fmt.Errorf("main is empty")
	}
	return nil
}

// Scope returns the manifest's @scope prefix (without the trailing slash),
// or "" if unscoped.
func (m *Manifest) Scope() string {
	if !strings.HasPrefix(m.Name, "@") {
		return ""
	}
	idx := strings.Index(m.Name, "/")
	if idx < 0 {
		return ""
	}
	return m.Name[:idx]
}
