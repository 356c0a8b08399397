package explore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/matsen/lineage/internal/paper"
)

// Status classifies the outcome of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Result is the terminal output of an analysis: the thread forest plus
// the full decision log, preserved even on cancellation or failure.
type Result struct {
	Status  Status         `json:"status"`
	Threads []paper.Thread `json:"threads"`
	Log     []Decision     `json:"log"`
	Err     string         `json:"error,omitempty"`
}

// Run executes a full analysis over the seed papers. The returned error
// is non-nil only for programmer mistakes (no seeds); everything else,
// including cancellation and session-fatal failures, is reported inside
// the Result so partial threads and the decision log always survive.
func (s *Session) Run(ctx context.Context, seeds []paper.Paper) (*Result, error) {
	if len(seeds) == 0 {
		return nil, errors.New("at least one seed paper is required")
	}

	s.Reset()
	s.seeds = seeds

	// Seeds can never be rediscovered as candidates.
	for _, seed := range seeds {
		s.claim(seed)
	}

	err := s.explore(ctx, seeds)

	// On a clean completion, discard threads that never grew. On
	// cancellation or failure everything is kept for inspection: partial
	// state is the whole point of the error-path result.
	if err == nil {
		kept := make([]*paper.Thread, 0, len(s.threads))
		for _, t := range s.threads {
			if t.Grew() {
				kept = append(kept, t)
				continue
			}
			s.decisions.Add(DecisionDiscard, "thread discarded: only its spawn paper",
				map[string]any{"thread": t.ID, "theme": t.Theme})
		}
		s.threads = kept
	}

	sort.SliceStable(s.threads, func(i, j int) bool {
		return s.threads[i].SpawnYear < s.threads[j].SpawnYear
	})

	res := &Result{Status: StatusCompleted, Log: s.decisions.Records()}
	for _, t := range s.threads {
		res.Threads = append(res.Threads, *t)
	}
	switch {
	case errors.Is(err, ErrCancelled):
		res.Status = StatusCancelled
		s.decisions.Add(DecisionCancelled, "analysis cancelled by operator", nil)
		res.Log = s.decisions.Records()
	case err != nil:
		res.Status = StatusFailed
		res.Err = err.Error()
	}

	s.emit("Analysis complete", fmt.Sprintf("%d threads", len(res.Threads)), 1)
	return res, nil
}

// explore runs theme extraction, per-theme expansion, and the pool
// post-pass. Per the propagation policy, a failed thread expansion
// aborts only that thread; only cancellation unwinds the whole run.
func (s *Session) explore(ctx context.Context, seeds []paper.Paper) error {
	for i, seed := range seeds {
		if err := s.checkCancel(ctx); err != nil {
			return err
		}
		s.emit("Extracting themes", seed.Title, float64(i)/float64(len(seeds)))

		themes, err := s.engine.ExtractThemes(ctx, seed)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return err
			}
			s.decisions.Add(DecisionError, "theme extraction failed for seed",
				map[string]any{"seed": seed.Title, "error": err.Error()})
			continue
		}
		s.decisions.Add(DecisionTheme, "themes extracted", map[string]any{
			"seed": seed.Title, "count": len(themes),
		})

		for _, theme := range themes {
			if err := s.checkCancel(ctx); err != nil {
				return err
			}
			if s.threadCount >= s.cfg.MaxThreads {
				s.decisions.Add(DecisionSkip, "thread cap reached, ignoring remaining themes",
					map[string]any{"theme": theme.Description})
				break
			}

			t := paper.NewThread(theme.Description, seed)
			s.threadCount++
			s.threads = append(s.threads, t)

			if err := s.expand(ctx, t, seed.Year); err != nil {
				if errors.Is(err, ErrCancelled) {
					return err
				}
				s.decisions.Add(DecisionError, "thread expansion aborted",
					map[string]any{"thread": t.ID, "theme": t.Theme, "error": err.Error()})
			}
		}
	}

	return s.poolPass(ctx)
}

// poolPass proposes extra threads from high-signal papers that were seen
// but never claimed. Opportunistic: any failure here costs only the
// extra threads.
func (s *Session) poolPass(ctx context.Context) error {
	if !s.cfg.PoolEnabled {
		return nil
	}

	var leftovers []paper.Paper
	for _, entry := range s.pool {
		if !s.isClaimed(entry.Paper) {
			leftovers = append(leftovers, entry.Paper)
		}
	}
	if len(leftovers) < s.cfg.PoolMinSize || s.threadCount >= s.cfg.MaxThreads {
		return nil
	}

	// High-signal first; present a bounded window to the model.
	sort.SliceStable(leftovers, func(i, j int) bool {
		return leftovers[i].CitationCount > leftovers[j].CitationCount
	})
	if len(leftovers) > 30 {
		leftovers = leftovers[:30]
	}

	if err := s.checkCancel(ctx); err != nil {
		return err
	}
	s.emit("Clustering leftover papers", fmt.Sprintf("%d papers", len(leftovers)), -1)

	budget := s.cfg.PoolMaxThreads
	if remaining := s.cfg.MaxThreads - s.threadCount; remaining < budget {
		budget = remaining
	}
	clusters, err := s.engine.ClusterLeftovers(ctx, leftovers, s.seeds, budget)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return err
		}
		s.decisions.Add(DecisionError, "leftover clustering failed, skipping post-pass",
			map[string]any{"error": err.Error()})
		return nil
	}

	for _, c := range clusters {
		var members []paper.Paper
		for _, idx := range c.Indices {
			if idx < 1 || idx > len(leftovers) {
				continue
			}
			p := leftovers[idx-1]
			if s.isClaimed(p) {
				continue
			}
			members = append(members, p)
		}
		if len(members) < 2 {
			continue
		}
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].Year < members[j].Year
		})

		t := paper.NewThread(c.Theme, members[0])
		s.claim(members[0])
		for _, p := range members[1:] {
			if len(t.Papers) >= s.cfg.MaxPapersPerThread {
				break
			}
			s.claim(p)
			t.Append(p, "clustered from unclaimed candidate pool")
		}
		s.threadCount++
		s.threads = append(s.threads, t)
		s.decisions.Add(DecisionPool, "thread proposed from leftover pool", map[string]any{
			"thread": t.ID, "theme": c.Theme, "papers": len(t.Papers),
		})
	}
	return nil
}
