package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nsig",
	Short: "Novel Signals - manuscript signal extraction",
	Long: `Novel Signals runs a staged signal pipeline over a manuscript:
name surface indexing, salience scoring, relationship signals, event
keyword scanning, and genre/tag resolution.

Each run publishes its artifacts to the workspace and records a row in
the run registry.`,
}

// Execute dispatches the root command
func Execute() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
