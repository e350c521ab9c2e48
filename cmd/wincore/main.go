package main

import (
	"github.com/go-delve/wincore/cmd/wincore/cmds"
	"github.com/go-delve/wincore/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.WincoreVersion.Build = Build
	}
	cmds.New(false).Execute()
}
