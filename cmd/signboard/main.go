package main

import (
	"os"

	"github.com/dyluth/signboard/cmd/signboard/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// The exit code is the host's response code; usage errors exit 1
	os.Exit(commands.Execute())
}
