package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matsen/lineage/internal/paper"
)

var authorCmd = &cobra.Command{
	Use:   "author <author-id>",
	Short: "List papers by a Semantic Scholar author ID",
	Long: `List the papers of one author, most useful for finding seed
candidates when you know who started a lineage but not which paper.

Example:
  lin author 2262347 --human`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthor,
}

func init() {
	rootCmd.AddCommand(authorCmd)
}

func runAuthor(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()
	logger := newRunLogger()
	client := newS2Client(cfg, logger)

	papers, err := client.AuthorPapers(context.Background(), args[0])
	if err != nil {
		exitWithAPIError("fetching author papers", err)
	}

	if humanOutput {
		fmt.Printf("%d papers:\n", len(papers))
		printPaperList(papers)
		return nil
	}
	if papers == nil {
		papers = []paper.Paper{}
	}
	return outputJSON(struct {
		AuthorID string        `json:"authorId"`
		Papers   []paper.Paper `json:"papers"`
	}{args[0], papers})
}
