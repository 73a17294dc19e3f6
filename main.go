package main

import (
	"os"

	"github.com/racephotos/bibfinder/cmd"
	"github.com/racephotos/bibfinder/internal/buildinfo"
)

// Set through -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   = "dev"
	buildDate = ""
)

func main() {
	build := &buildinfo.Context{Version: version, BuildDate: buildDate}
	if err := cmd.RootCommand(build).Execute(); err != nil {
		os.Exit(1)
	}
}
