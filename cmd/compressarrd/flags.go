package main

import (
	"github.com/spf13/pflag"
)

// cliFlags holds the daemon's command-line surface: -C/--color, -D/--debug,
// -I/--instances, -J/--job-path, -P/--plugin-path, -U/--user-storage-path.
type cliFlags struct {
	color         bool
	debug         bool
	instances     int
	jobPath       string
	pluginPath    string
	storagePath   string
	helpRequested bool
}

func parseFlags(args []string) (cliFlags, error) {
	fs := pflag.NewFlagSet("compressarrd", pflag.ContinueOnError)

	var f cliFlags
	fs.BoolVarP(&f.color, "color", "C", false, "force color console output")
	fs.BoolVarP(&f.debug, "debug", "D", false, "enable debug-level logging")
	fs.IntVarP(&f.instances, "instances", "I", 1, "maximum concurrent jobs")
	fs.StringVarP(&f.jobPath, "job-path", "J", "", "override job temp-root")
	fs.StringVarP(&f.pluginPath, "plugin-path", "P", "", "additional plugin search path")
	fs.StringVarP(&f.storagePath, "user-storage-path", "U", "", "override the storage root")

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			f.helpRequested = true
			return f, nil
		}
		return cliFlags{}, err
	}
	return f, nil
}
