package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/lineage/internal/store"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored analysis runs",
	Long: `List stored runs, most recent first.

Examples:
  lin runs
  lin runs --limit 5 --human`,
	Args: cobra.NoArgs,
	RunE: runRuns,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.Flags().IntVar(&runsLimit, "limit", DefaultRunsLimit, "Maximum runs to list")
}

func runRuns(cmd *cobra.Command, args []string) error {
	db := mustOpenStore()
	defer db.Close()

	runs, err := db.ListRuns(runsLimit)
	if err != nil {
		exitWithError(ExitError, "listing runs: %v", err)
	}

	if !humanOutput {
		if runs == nil {
			runs = []store.RunSummary{}
		}
		return outputJSON(struct {
			Runs []store.RunSummary `json:"runs"`
		}{runs})
	}

	if len(runs) == 0 {
		fmt.Println("No stored runs.")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %-9s  %d threads, %d papers\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Status, r.Threads, r.Papers)
		fmt.Printf("  seeds: %s\n", truncateString(strings.Join(r.SeedTitles, "; "), TitleMaxLen))
	}
	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	db := mustOpenStore()
	defer db.Close()

	deleted, err := db.DeleteRun(args[0])
	if err != nil {
		exitWithError(ExitError, "deleting run: %v", err)
	}
	if !deleted {
		exitWithError(ExitNotFound, "run not found: %s", args[0])
	}

	if humanOutput {
		fmt.Printf("Deleted run %s\n", args[0])
		return nil
	}
	return outputJSON(StatusResponse{Status: "deleted", ID: args[0]})
}
