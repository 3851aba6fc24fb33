package plugin

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ManifestFile is the name of a plugin's manifest within its directory.
const ManifestFile = "plugin.json"

// SearchPaths returns the ordered union of discovery roots: the
// repository's own job-actions directory, the OS-standard global install
// path, every entry in the plugin-path environment variable, and the
// CLI-supplied extra path.
func SearchPaths(jobActionsDir, envValue, cliExtra string) []string {
	var paths []string
	if jobActionsDir != "" {
		paths = append(paths, jobActionsDir)
	}
	paths = append(paths, globalPaths()...)
	if envValue != "" {
		paths = append(paths, strings.Split(envValue, string(filepath.ListSeparator))...)
	}
	if cliExtra != "" {
		paths = append(paths, cliExtra)
	}
	return paths
}

func globalPaths() []string {
	if runtime.GOOS == "windows" {
		programData := os.Getenv("ProgramData")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return []string{filepath.Join(programData, "compressarr", "plugins")}
	}
	return []string{
		"/usr/local/lib/compressarr/plugins",
		"/usr/lib/compressarr/plugins",
	}
}

// Candidate is a directory that may hold a plugin, discovered from one of
// the search paths.
type Candidate struct {
	Dir          string
	ManifestPath string
}

// Discover scans every search path: a path that itself carries a manifest
// is a single candidate; otherwise every immediate child directory is a
// candidate, with "@scope" children expanded one further level.
func Discover(searchPaths []string) []Candidate {
	var candidates []Candidate
	seen := make(map[string]struct{})

	add := func(dir string) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = dir
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		candidates = append(candidates, Candidate{Dir: dir, ManifestPath: filepath.Join(dir, ManifestFile)})
	}

	for _, root := range searchPaths {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		if hasManifest(root) {
			add(root)
			continue
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			child := filepath.Join(root, entry.Name())
			if strings.HasPrefix(entry.Name(), "@") {
				scoped, err := os.ReadDir(child)
				if err != nil {
					continue
				}
				for _, s := range scoped {
					if s.IsDir() {
						add(filepath.Join(child, s.Name()))
					}
				}
				continue
			}
			add(child)
		}
	}
	return candidates
}

func hasManifest(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ManifestFile))
	return err == nil && !info.IsDir()
}
