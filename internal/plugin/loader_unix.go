//go:build !windows

package plugin

import (
	"fmt"
	pluginrt "plugin"

	"compressarr/pluginsdk"
)

// openInitializer opens the .so at path and resolves its Init or Default
// symbol into a pluginsdk.Initializer.
func openInitializer(path string) (pluginsdk.Initializer, error) {
	handle, err := pluginrt.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %w", path, err)
	}

	if sym, err := handle.Lookup(pluginsdk.InitSymbol); err == nil {
		fn, ok := sym.(func(pluginsdk.Host) error)
		if !ok {
			return nil, fmt.Errorf("plugin %s: %s has the wrong type", path, pluginsdk.InitSymbol)
		}
		return fn, nil
	}

	sym, err := handle.Lookup(pluginsdk.DefaultSymbol)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: no %s or %s symbol", path, pluginsdk.InitSymbol, pluginsdk.DefaultSymbol)
	}
	switch v := sym.(type) {
	case func(pluginsdk.Host) error:
		return v, nil
	case *func(pluginsdk.Host) error:
		if v == nil || *v == nil {
			return nil, fmt.Errorf("plugin %s: %s is nil", path, pluginsdk.DefaultSymbol)
		}
		return *v, nil
	default:
		return nil, fmt.Errorf("plugin %s: %s has the wrong type", path, pluginsdk.DefaultSymbol)
	}
}

// loadingSupported reports whether the runtime platform can dlopen plugins.
const loadingSupported = true
