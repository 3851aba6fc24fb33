package main

import (
	"fmt"
	"os"
)

func main() {
	code := run(os.Args[1:])
	os.Exit(code)
}

func run(args []string) int {
	flags, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if flags.helpRequested {
		return 0
	}

	d, err := boot(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compressarrd: %v\n", err)
		return 1
	}
	defer d.Close()

	return d.Run()
}
