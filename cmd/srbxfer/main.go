// srbxfer - chunked file transfer between local disk and a remote store.
package main

import (
	"os"

	"github.com/transana/srbxfer/internal/cli"
	"github.com/transana/srbxfer/internal/version"
)

// Version information, overridden with -ldflags at release time.
var (
	Version   = "v0.4.0"
	BuildTime = "2026-10-18"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
