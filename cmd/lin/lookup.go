package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/lineage/internal/paper"
)

var (
	lookupCitations  bool
	lookupReferences bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <paper-id>",
	Short: "Look up a paper without running an analysis",
	Long: `Query Semantic Scholar for one paper's metadata.

Useful for checking a seed before spending a full run on it. Accepts the
same ID formats as 'lin run', including bare titles.

Examples:
  lin lookup DOI:10.1093/sysbio/syy032
  lin lookup "variational bayesian phylogenetic inference" --human
  lin lookup ARXIV:2106.15928 --citations`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.Flags().BoolVar(&lookupCitations, "citations", false, "Also list citing papers")
	lookupCmd.Flags().BoolVar(&lookupReferences, "references", false, "Also list referenced papers")
}

func runLookup(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	logger := newRunLogger()
	client := newS2Client(cfg, logger)
	ctx := context.Background()

	p := mustLookupPaper(ctx, client, args[0])

	var citing, refs []paper.Paper
	var err error
	if lookupCitations {
		if citing, err = client.Citations(ctx, p.ID); err != nil {
			exitWithAPIError("fetching citations", err)
		}
	}
	if lookupReferences {
		if refs, err = client.References(ctx, p.ID); err != nil {
			exitWithAPIError("fetching references", err)
		}
	}

	if humanOutput {
		printPaperHuman(p)
		if lookupCitations {
			fmt.Printf("\nCited by %d papers:\n", len(citing))
			printPaperList(citing)
		}
		if lookupReferences {
			fmt.Printf("\nReferences %d papers:\n", len(refs))
			printPaperList(refs)
		}
		return nil
	}
	if !lookupCitations && !lookupReferences {
		return outputJSON(p)
	}
	return outputJSON(struct {
		Paper      *paper.Paper  `json:"paper"`
		CitedBy    []paper.Paper `json:"citedBy,omitempty"`
		References []paper.Paper `json:"references,omitempty"`
	}{p, citing, refs})
}

func printPaperList(papers []paper.Paper) {
	for _, p := range papers {
		fmt.Printf("  %d  %s\n", p.Year, truncateString(p.Title, TitleMaxLen))
	}
}
