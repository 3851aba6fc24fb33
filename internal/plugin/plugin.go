package plugin

import "compressarr/pluginsdk"

// Plugin is a loaded, initialized plugin record. It is exclusively owned by
// the Registry from creation until process exit.
type Plugin struct {
	Identifier string
	Scope      string
	Path       string
	Version    Version
	HostRange  Range
	Main       string
	Disabled   bool

	actions map[string]pluginsdk.ActionConstructor
	init    pluginsdk.Initializer
}

// RegisterAction is called from a plugin's Init function (via the Host
// implementation) to add one action constructor under name.
func (p *Plugin) RegisterAction(name string, constructor pluginsdk.ActionConstructor) {
	if p.actions == nil {
		p.actions = make(map[string]pluginsdk.ActionConstructor)
	}
	p.actions[name] = constructor
}

// Action looks up a constructor registered under name.
func (p *Plugin) Action(name string) (pluginsdk.ActionConstructor, bool) {
	c, ok := p.actions[name]
	return c, ok
}

// ActionNames returns the names this plugin has registered, for
// diagnostics.
func (p *Plugin) ActionNames() []string {
	names := make([]string, 0, len(p.actions))
	for name := range p.actions {
		names = append(names, name)
	}
	return names
}
