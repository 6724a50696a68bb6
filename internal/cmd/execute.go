package cmd

import (
	"os"

	"github.com/a5c-ai/mcpml/internal/logging"
)

// Execute wires commands and runs Cobra.
func Execute(build BuildInfo) {
	logging.Setup(os.Stderr, "info")

	root := NewRootCmd(build)
	if err := root.Execute(); err != nil {
		handleError(err)
		os.Exit(1)
	}
}
