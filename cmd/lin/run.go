package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/matsen/lineage/internal/cache"
	"github.com/matsen/lineage/internal/config"
	"github.com/matsen/lineage/internal/explore"
	"github.com/matsen/lineage/internal/oracle"
	"github.com/matsen/lineage/internal/paper"
	"github.com/matsen/lineage/internal/pdf"
	"github.com/matsen/lineage/internal/relevance"
	"github.com/matsen/lineage/internal/s2"
)

var (
	runPDFs       []string
	runModel      string
	runCriteria   string
	runMaxThreads int
	runMaxPapers  int
	runMaxPerYear int
	runNoBroad    bool
	runNoPool     bool
	runNoSave     bool
	runNoCache    bool
	runVerbose    bool
)

var runCmd = &cobra.Command{
	Use:   "run [paper-id...]",
	Short: "Discover research lineages from one or more seed papers",
	Long: `Run a full lineage analysis from seed papers.

Seeds can be given as paper IDs or extracted from PDFs with --pdf.

Supported paper ID formats:
  DOI:10.1038/nature12373      DOI
  ARXIV:2106.15928             arXiv ID
  PMID:19872477                PubMed ID
  649def34f8be52c8b66281af98ae884c09aef38b   Semantic Scholar ID
  anything else                title match

Requires a Semantic Scholar key (S2_API_KEY or config) for reasonable
throughput, and an oracle credential (ANTHROPIC_API_KEY or
GEMINI_API_KEY).

Examples:
  lin run DOI:10.1093/sysbio/syy032
  lin run --pdf paper.pdf --max-threads 4
  lin run "variational bayesian phylogenetic inference" --human`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringArrayVar(&runPDFs, "pdf", nil, "Seed from a PDF file (repeatable)")
	runCmd.Flags().StringVar(&runModel, "model", "", "Oracle model name (default: provider default)")
	runCmd.Flags().StringVar(&runCriteria, "criteria", "", "Free-text override of the lineage relevance rubric")
	runCmd.Flags().IntVar(&runMaxThreads, "max-threads", 0, "Cap on threads across the whole run")
	runCmd.Flags().IntVar(&runMaxPapers, "max-papers", 0, "Cap on papers per thread")
	runCmd.Flags().IntVar(&runMaxPerYear, "max-per-year", 0, "Cap on papers per year per thread")
	runCmd.Flags().BoolVar(&runNoBroad, "no-broad-search", false, "Skip the broad search on first expansion")
	runCmd.Flags().BoolVar(&runNoPool, "no-pool", false, "Skip the leftover-pool clustering pass")
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "Do not store the run")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "Bypass the API response cache")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Log API and oracle activity to stderr")
}

// RunResponse is the JSON output of the run command.
type RunResponse struct {
	RunID   string             `json:"runId,omitempty"`
	Status  explore.Status     `json:"status"`
	Error   string             `json:"error,omitempty"`
	Seeds   []paper.Paper      `json:"seeds"`
	Threads []paper.Thread     `json:"threads"`
	Log     []explore.Decision `json:"log"`
}

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && len(runPDFs) == 0 {
		return fmt.Errorf("at least one seed paper is required (paper ID or --pdf)")
	}

	cfg := mustLoadConfig()
	logger := newRunLogger()

	// Ctrl-C cancels cooperatively: the session notices the context and
	// returns whatever it has.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newS2Client(cfg, logger)
	seeds := mustResolveSeeds(ctx, client, args, runPDFs)

	llm, err := oracle.New(ctx, resolveModel(cfg))
	if err != nil {
		if errors.Is(err, oracle.ErrNoCredential) {
			exitWithError(ExitConfigError,
				"no oracle credential found: set ANTHROPIC_API_KEY or GEMINI_API_KEY")
		}
		exitWithError(ExitError, "creating oracle: %v", err)
	}
	engine := relevance.NewEngine(llm)
	engine.SetLogger(logger)
	if criteria := resolveCriteria(cfg); criteria != "" {
		engine.Criteria = criteria
	}

	ecfg := resolveExploreConfig(cfg)
	opts := []explore.Option{explore.WithLogger(logger)}
	if humanOutput {
		opts = append(opts, explore.WithProgress(printProgress))
	}
	session := explore.NewSession(client, engine, ecfg, opts...)

	result, err := session.Run(ctx, seeds)
	if err != nil {
		exitWithError(ExitError, "running analysis: %v", err)
	}

	resp := RunResponse{
		Status:  result.Status,
		Error:   result.Err,
		Seeds:   seeds,
		Threads: result.Threads,
		Log:     result.Log,
	}
	if !runNoSave {
		db := mustOpenStore()
		defer db.Close()
		id, err := db.SaveRun(result, seeds, ecfg)
		if err != nil {
			exitWithError(ExitError, "storing run: %v", err)
		}
		resp.RunID = id
	}

	if humanOutput {
		printRunHuman(resp)
	} else {
		outputJSON(resp)
	}
	if result.Status == explore.StatusFailed {
		os.Exit(ExitError)
	}
	return nil
}

func newRunLogger() *slog.Logger {
	level := slog.LevelWarn
	if runVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newS2Client(cfg *config.Config, logger *slog.Logger) *s2.Client {
	opts := []s2.ClientOption{s2.WithLogger(logger)}
	if cfg.S2APIKey != "" {
		opts = append(opts, s2.WithAPIKey(cfg.S2APIKey))
	}
	if d := cfg.APIDelay(); d > 0 {
		opts = append(opts, s2.WithDelay(d))
	}
	if !runNoCache {
		disk, err := cache.Open(config.CachePath(), cfg.CacheTTL())
		if err != nil {
			logger.Warn("api cache unavailable, running uncached", "error", err)
		} else {
			opts = append(opts, s2.WithCache(disk))
		}
	}
	return s2.NewClient(opts...)
}

func resolveModel(cfg *config.Config) string {
	if runModel != "" {
		return runModel
	}
	return cfg.Model
}

func resolveCriteria(cfg *config.Config) string {
	if runCriteria != "" {
		return runCriteria
	}
	return cfg.Criteria
}

func resolveExploreConfig(cfg *config.Config) explore.Config {
	ecfg := cfg.ExploreConfig()
	if runMaxThreads > 0 {
		ecfg.MaxThreads = runMaxThreads
	}
	if runMaxPapers > 0 {
		ecfg.MaxPapersPerThread = runMaxPapers
	}
	if runMaxPerYear > 0 {
		ecfg.MaxPerYear = runMaxPerYear
	}
	if runNoBroad {
		ecfg.BroadSearch = false
	}
	if runNoPool {
		ecfg.PoolEnabled = false
	}
	return ecfg
}

// mustResolveSeeds turns ID arguments and PDF paths into full paper
// records, exiting on the first one that cannot be resolved.
func mustResolveSeeds(ctx context.Context, client *s2.Client, ids, pdfPaths []string) []paper.Paper {
	var seeds []paper.Paper
	for _, arg := range ids {
		p := mustLookupPaper(ctx, client, arg)
		seeds = append(seeds, *p)
	}
	for _, path := range pdfPaths {
		ref, err := pdf.ExtractSeedRef(path)
		if err != nil {
			exitWithError(ExitError, "extracting seed from %s: %v", path, err)
		}
		target := ref.Title
		if ref.DOI != "" {
			target = "DOI:" + ref.DOI
		}
		p := mustLookupPaper(ctx, client, target)
		seeds = append(seeds, *p)
	}
	return seeds
}

// mustLookupPaper resolves one ID-or-title argument to a paper record.
func mustLookupPaper(ctx context.Context, client *s2.Client, arg string) *paper.Paper {
	parsed := s2.ParsePaperID(arg)
	id := parsed.String()
	if !parsed.IsExternalID() {
		resolved, err := client.ResolveID(ctx, arg)
		if err != nil {
			exitWithAPIError(fmt.Sprintf("resolving %q", arg), err)
		}
		id = resolved
	}
	p, err := client.GetPaper(ctx, id)
	if err != nil {
		exitWithAPIError(fmt.Sprintf("fetching %q", arg), err)
	}
	return p
}

func printProgress(message, detail string, percent float64, threads []paper.Summary) {
	if percent >= 0 {
		fmt.Fprintf(os.Stderr, "[%3.0f%%] %s: %s\n", percent*100, message, detail)
		return
	}
	fmt.Fprintf(os.Stderr, "       %s: %s\n", message, detail)
}

func printRunHuman(resp RunResponse) {
	fmt.Printf("Status: %s\n", resp.Status)
	if resp.Error != "" {
		fmt.Printf("Error: %s\n", resp.Error)
	}
	if resp.RunID != "" {
		fmt.Printf("Run: %s\n", resp.RunID)
	}
	fmt.Printf("Threads: %d\n\n", len(resp.Threads))
	for _, t := range resp.Threads {
		printThreadHuman(t, "")
		fmt.Println()
	}
}
