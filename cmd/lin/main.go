// Package main provides the lin CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/matsen/lineage/internal/config"
	"github.com/matsen/lineage/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

// configPath overrides the default config file location
var configPath string

func main() {
	// A local .env can carry S2_API_KEY and the oracle credentials.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lin",
	Short: "Research lineage discovery CLI",
	Long: `lin discovers research lineages: given one or more seed papers, it
recursively explores the citation graph forward in time, using an LLM to
judge which papers genuinely continue each line of work and when a line
forks into a distinct new direction.

Output is a forest of chronological threads plus a decision log
explaining every inclusion, skip, and fork. Completed runs are stored
locally and can be re-inspected without re-running.

All commands output JSON by default for agent integration.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default ~/.config/lin/config.yml)")
	rootCmd.Version = Version
}

// mustLoadConfig loads configuration, exits on error.
func mustLoadConfig() *config.Config {
	path := configPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		exitWithError(ExitConfigError, "loading config: %v", err)
	}
	return cfg
}

// mustOpenStore opens the run database, exits on error.
// The caller is responsible for calling Close() on the returned DB.
func mustOpenStore() *store.DB {
	dataDir := config.DataPath()
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		exitWithError(ExitError, "creating data directory: %v", err)
	}
	db, err := store.OpenDB(config.DBPath())
	if err != nil {
		exitWithError(ExitError, "opening run database: %v", err)
	}
	return db
}
