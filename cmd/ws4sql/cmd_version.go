package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// versionCmd is the cobra CLI command for the version subcommand
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "ws4sql binary version information",
		Run: func(*cobra.Command, []string) {
			fmt.Println(BuildDetails())
		},
	}
}

// BuildDetails formats the build information injected via ldflags
func BuildDetails() string {
	if version == "" {
		return `
ws4sql (unknown version)
For documentation, visit https://github.com/ws4sql/ws4sql

To build with version information please use the Makefile
`
	}

	return fmt.Sprintf(`
ws4sql %v
For documentation, visit https://github.com/ws4sql/ws4sql

Commit SHA-1       : %v
Commit timestamp   : %v
Go version         : %v

Licensed under the Apache Public License 2.0
`, version, commit, date, runtime.Version())
}
