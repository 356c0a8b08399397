package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showLog bool

var showCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a stored run's thread forest",
	Long: `Show one stored run: its seeds, thread forest, and optionally the
full decision log.

Examples:
  lin show 6f1c2a3e-... --human
  lin show 6f1c2a3e-... --log`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().BoolVar(&showLog, "log", false, "Include the decision log")
}

func runShow(cmd *cobra.Command, args []string) error {
	db := mustOpenStore()
	defer db.Close()

	run, err := db.GetRun(args[0])
	if err != nil {
		exitWithError(ExitError, "loading run: %v", err)
	}
	if run == nil {
		exitWithError(ExitNotFound, "run not found: %s", args[0])
	}
	if !showLog {
		run.Log = nil
	}

	if !humanOutput {
		return outputJSON(run)
	}

	fmt.Printf("Run %s (%s)\n", run.ID, run.Status)
	fmt.Printf("Created: %s\n", run.CreatedAt.Local())
	if run.Err != "" {
		fmt.Printf("Error: %s\n", run.Err)
	}
	fmt.Println("Seeds:")
	for _, p := range run.Seeds {
		fmt.Printf("  %d  %s\n", p.Year, truncateString(p.Title, TitleMaxLen))
	}
	fmt.Printf("\nThreads: %d\n\n", len(run.Threads))
	for _, t := range run.Threads {
		printThreadHuman(t, "")
		fmt.Println()
	}
	if showLog {
		fmt.Printf("Decision log (%d records):\n", len(run.Log))
		for i, d := range run.Log {
			fmt.Printf("%4d  %-10s  %s\n", i, d.Type, d.Message)
		}
	}
	return nil
}
