package main

import (
	"os"

	"github.com/tridyme/tridyme-cli/internal/cli"
	"github.com/tridyme/tridyme-cli/internal/logging"
)

// main is the entry point for the tridyme CLI binary.
func main() {
	logger := logging.NewLogger(os.Stderr, logging.LevelInfo)
	if err := cli.Execute(os.Args[1:], logger); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}
