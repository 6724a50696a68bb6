// Package main provides the mcpml CLI.
package main

import (
	"github.com/a5c-ai/mcpml/internal/cmd"
)

// Build vars.
var (
	//nolint: gochecknoglobals
	Version = ""
	//nolint: gochecknoglobals
	CommitSHA = ""
)

func main() {
	cmd.Execute(cmd.BuildInfo{Version: Version, CommitSHA: CommitSHA})
}
