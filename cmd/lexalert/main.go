// Command lexalert is the operator CLI.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/turtacn/LexAlert/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
