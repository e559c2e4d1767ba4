// filetree - collapsible file tree over a notebook server's contents
package main

import (
	"os"

	"github.com/rescale/notebook-filetree/internal/cli"
	"github.com/rescale/notebook-filetree/internal/version"
)

// Version information, overridden by ldflags.
var (
	Version   = ""
	BuildTime = ""
)

func main() {
	if Version != "" {
		version.Version = Version
	}
	if BuildTime != "" {
		version.BuildTime = BuildTime
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
