// Package relevance holds the LLM-mediated decision functions of the
// lineage explorer: theme extraction, candidate ranking, successor
// selection, and divergence detection. Each function has a defined
// output contract and its own recovery path for malformed model output,
// so one bad completion never takes down a whole expansion.
package relevance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/matsen/lineage/internal/oracle"
	"github.com/matsen/lineage/internal/paper"
)

const (
	// DefaultSelectWindow is how many ranked candidates selection sees.
	DefaultSelectWindow = 12

	// DefaultMaxPerIteration caps ADD decisions per expansion step.
	DefaultMaxPerIteration = 5

	// fallbackTopK is how many candidates the degraded selection path
	// keeps when the model's decision list is unparseable.
	fallbackTopK = 3

	// FallbackReason marks papers selected by the degraded path.
	FallbackReason = "top-ranked candidate (selection response unparseable)"
)

// RankingParseError is raised when a ranking response stays unparseable
// after the one bounded repair round-trip. It carries both raw responses
// for offline diagnosis.
type RankingParseError struct {
	Raw       string
	RepairRaw string
	Err       error
}

func (e *RankingParseError) Error() string {
	return fmt.Sprintf("ranking response unparseable after repair attempt: %v", e.Err)
}

func (e *RankingParseError) Unwrap() error { return e.Err }

// Divergence is the outcome of a divergence check.
type Divergence struct {
	IsDivergence bool   `json:"isDivergence"`
	NewTheme     string `json:"newTheme"`
	Reason       string `json:"reason"`
}

// Engine runs the four decision functions against an oracle.
type Engine struct {
	oracle oracle.Oracle
	logger *slog.Logger

	// Criteria overrides the default lineage-definition rubric in every
	// prompt when non-empty (the "clustering criteria" config knob).
	Criteria string

	SelectWindow    int
	MaxPerIteration int
}

// NewEngine creates an engine with default knobs.
func NewEngine(o oracle.Oracle) *Engine {
	return &Engine{
		oracle:          o,
		logger:          slog.Default(),
		SelectWindow:    DefaultSelectWindow,
		MaxPerIteration: DefaultMaxPerIteration,
	}
}

// SetLogger replaces the operational logger.
func (e *Engine) SetLogger(l *slog.Logger) { e.logger = l }

func (e *Engine) criteria() string {
	if e.Criteria != "" {
		return e.Criteria
	}
	return defaultCriteria
}

// ExtractThemes asks for the 2-4 research directions a paper opens.
// Unparseable output means "no themes found", not a failure: a seed with
// no extractable themes simply spawns no threads.
func (e *Engine) ExtractThemes(ctx context.Context, p paper.Paper) ([]paper.Theme, error) {
	raw, err := e.oracle.Complete(ctx, buildThemesPrompt(p))
	if err != nil {
		return nil, fmt.Errorf("extracting themes: %w", err)
	}

	var themes []paper.Theme
	if !CleanArray(raw, &themes) {
		e.logger.Warn("theme extraction unparseable, treating as no themes", "paper", p.Title)
		return nil, nil
	}

	kept := themes[:0]
	for _, t := range themes {
		if t.Description != "" {
			kept = append(kept, t)
		}
	}
	return kept, nil
}

// RankByRelevance orders candidates by lineage strength. The wire format
// is a 1-based index array; out-of-range and duplicate indices are
// dropped silently. Stage one is deterministic cleanup; stage two is one
// corrective round-trip asking the model to repair its own output; after
// that the operation fails with a RankingParseError.
func (e *Engine) RankByRelevance(ctx context.Context, candidates []paper.Paper, theme string, frontier paper.Paper) ([]paper.Paper, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	raw, err := e.oracle.Complete(ctx, buildRankingPrompt(candidates, theme, frontier, e.criteria()))
	if err != nil {
		return nil, fmt.Errorf("ranking candidates: %w", err)
	}

	var indices []int
	if CleanArray(raw, &indices) {
		return pickByIndices(candidates, indices), nil
	}

	repairRaw, err := e.oracle.Complete(ctx, buildRepairPrompt(raw))
	if err != nil {
		return nil, &RankingParseError{Raw: raw, Err: fmt.Errorf("repair round-trip failed: %w", err)}
	}
	if CleanArray(repairRaw, &indices) {
		return pickByIndices(candidates, indices), nil
	}
	return nil, &RankingParseError{
		Raw:       raw,
		RepairRaw: repairRaw,
		Err:       fmt.Errorf("not a JSON integer array"),
	}
}

// pickByIndices maps 1-based indices onto candidates, dropping
// out-of-range and duplicate entries.
func pickByIndices(candidates []paper.Paper, indices []int) []paper.Paper {
	seen := make(map[int]bool, len(indices))
	var out []paper.Paper
	for _, idx := range indices {
		if idx < 1 || idx > len(candidates) || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, candidates[idx-1])
	}
	return out
}

// selectionDecision is the wire format for one ADD/SKIP decision.
type selectionDecision struct {
	Index    int    `json:"index"`
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// SelectSuccessors presents the top ranked candidates plus thread and
// seed context and asks for explicit ADD/SKIP decisions. Parse failure
// degrades to the top few by rank with a generic reason: this step runs
// deep inside a long recursive search and a lost iteration is cheaper
// than a lost thread.
func (e *Engine) SelectSuccessors(ctx context.Context, ranked []paper.Paper, t *paper.Thread, seeds []paper.Paper) ([]paper.Paper, error) {
	if len(ranked) == 0 {
		return nil, nil
	}
	window := ranked
	if len(window) > e.SelectWindow {
		window = window[:e.SelectWindow]
	}

	raw, err := e.oracle.Complete(ctx, buildSelectionPrompt(window, t, seeds, e.criteria()))
	if err != nil {
		return nil, fmt.Errorf("selecting successors: %w", err)
	}

	var decisions []selectionDecision
	if !CleanArray(raw, &decisions) {
		e.logger.Warn("selection response unparseable, degrading to top-ranked", "thread", t.ID)
		k := fallbackTopK
		if k > len(window) {
			k = len(window)
		}
		var out []paper.Paper
		for _, p := range window[:k] {
			p.SelectionReason = FallbackReason
			out = append(out, p)
		}
		return out, nil
	}

	var out []paper.Paper
	for _, d := range decisions {
		if d.Decision != "ADD" || d.Index < 1 || d.Index > len(window) {
			continue
		}
		p := window[d.Index-1]
		p.SelectionReason = d.Reason
		out = append(out, p)
		if len(out) >= e.MaxPerIteration {
			break
		}
	}
	return out, nil
}

// Cluster is one proposed thread from the leftover-pool post-pass:
// a theme plus 1-based indices into the presented leftovers.
type Cluster struct {
	Theme   string `json:"theme"`
	Indices []int  `json:"indices"`
}

// ClusterLeftovers proposes up to maxClusters additional threads from
// high-signal papers that never made it into any thread. Parse failure
// degrades to no clusters; this pass is opportunistic by design.
func (e *Engine) ClusterLeftovers(ctx context.Context, leftovers []paper.Paper, seeds []paper.Paper, maxClusters int) ([]Cluster, error) {
	if len(leftovers) == 0 || maxClusters <= 0 {
		return nil, nil
	}

	raw, err := e.oracle.Complete(ctx, buildClusterPrompt(leftovers, seeds, maxClusters, e.criteria()))
	if err != nil {
		return nil, fmt.Errorf("clustering leftovers: %w", err)
	}

	var clusters []Cluster
	if !CleanArray(raw, &clusters) {
		e.logger.Warn("leftover clustering unparseable, skipping post-pass")
		return nil, nil
	}
	if len(clusters) > maxClusters {
		clusters = clusters[:maxClusters]
	}
	kept := clusters[:0]
	for _, c := range clusters {
		if c.Theme != "" && len(c.Indices) > 0 {
			kept = append(kept, c)
		}
	}
	return kept, nil
}

// DetectDivergence is a strict yes/no gate on spawning a sub-thread.
// The default answer on ambiguity or unparseable output is no.
func (e *Engine) DetectDivergence(ctx context.Context, candidate paper.Paper, parentTheme string, seeds []paper.Paper) (Divergence, error) {
	raw, err := e.oracle.Complete(ctx, buildDivergencePrompt(candidate, parentTheme, seeds, e.criteria()))
	if err != nil {
		return Divergence{}, fmt.Errorf("divergence check: %w", err)
	}

	var d Divergence
	if !CleanObject(raw, &d) {
		e.logger.Warn("divergence response unparseable, defaulting to no", "paper", candidate.Title)
		return Divergence{Reason: "response unparseable; defaulted to no"}, nil
	}
	if d.IsDivergence && d.NewTheme == "" {
		// A sub-thread with no theme cannot be expanded; treat as no.
		d.IsDivergence = false
		d.Reason = "divergence claimed without a new theme; defaulted to no"
	}
	e.logger.Info("divergence decision",
		"paper", candidate.Title, "divergence", d.IsDivergence, "reason", d.Reason)
	return d, nil
}
