package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/matsen/lineage/internal/paper"
	"github.com/matsen/lineage/internal/s2"
)

const (
	// DefaultRunsLimit bounds the runs listing.
	DefaultRunsLimit = 20

	// TitleMaxLen truncates titles in human-readable listings.
	TitleMaxLen = 70
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// exitWithAPIError classifies an upstream API error into an exit code.
func exitWithAPIError(context string, err error) {
	switch {
	case s2.IsNotFound(err):
		exitWithError(ExitNotFound, "%s: %v", context, err)
	case s2.IsAuthError(err):
		exitWithError(ExitConfigError, "%s: %v", context, err)
	default:
		exitWithError(ExitAPIError, "%s: %v", context, err)
	}
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// printThreadHuman prints one thread as an indented chronological tree.
func printThreadHuman(t paper.Thread, indent string) {
	fmt.Printf("%s[%d] %s\n", indent, t.SpawnYear, t.Theme)
	for _, p := range t.Papers {
		fmt.Printf("%s  %d  %s\n", indent, p.Year, truncateString(p.Title, TitleMaxLen))
		if p.SelectionReason != "" {
			fmt.Printf("%s      %s\n", indent, p.SelectionReason)
		}
	}
	for _, sub := range t.SubThreads {
		fmt.Printf("%s  └─ sub-thread:\n", indent)
		printThreadHuman(*sub, indent+"  ")
	}
}

// printPaperHuman prints one paper's details.
func printPaperHuman(p *paper.Paper) {
	fmt.Printf("%s\n", p.Title)
	if names := p.AuthorNames(3); names != "" {
		fmt.Printf("  Authors: %s\n", names)
	}
	if p.Year > 0 {
		fmt.Printf("  Year: %d\n", p.Year)
	}
	if p.CitationCount > 0 {
		fmt.Printf("  Citations: %d\n", p.CitationCount)
	}
	if p.ID != "" {
		fmt.Printf("  ID: %s\n", p.ID)
	}
	if p.Abstract != "" {
		fmt.Printf("  Abstract: %s\n", truncateString(strings.TrimSpace(p.Abstract), 300))
	}
}
