//go:build windows

package plugin

import (
	"fmt"

	"compressarr/pluginsdk"
)

// openInitializer always fails on Windows: the Go toolchain's plugin
// package has no Windows support. Candidates are still discovered for
// diagnostics; they simply cannot be loaded.
func openInitializer(path string) (pluginsdk.Initializer, error) {
	return nil, fmt.Errorf("plugin %s: dynamic plugin loading is unavailable on this platform", path)
}

const loadingSupported = false
