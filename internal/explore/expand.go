package explore

import (
	"context"
	"errors"

	"github.com/matsen/lineage/internal/paper"
)

// expand grows one thread year by year until it hits the present, its
// paper cap, or exhaustion. Sub-thread expansion happens synchronously,
// depth-first, before the parent loop proceeds: only one expansion stack
// path is live at a time.
//
// Termination: currentYear is non-decreasing every iteration (a selected
// paper's year or the +1 fallback) and bounded by the present year, and
// the paper count is bounded by MaxPapersPerThread.
func (s *Session) expand(ctx context.Context, t *paper.Thread, startYear int) (err error) {
	s.stack.push(t.ID)
	defer s.stack.pop()

	s.emit("Expanding thread", t.Theme, -1)

	current := startYear
	prevFrontier := paper.Key("")
	prevYear := -1
	first := true

	for current < s.cfg.PresentYear && len(t.Papers) < s.cfg.MaxPapersPerThread {
		if err := s.checkCancel(ctx); err != nil {
			return err
		}

		frontier := t.Frontier()
		if frontier.Identity() == prevFrontier && current == prevYear {
			// No paper added and no year progress since the last pass:
			// the thread has nothing left to offer.
			s.decisions.Add(DecisionExhausted, "thread exhausted",
				map[string]any{"thread": t.ID, "year": current})
			break
		}
		prevFrontier = frontier.Identity()
		prevYear = current

		candidates, err := s.retrieveCandidates(ctx, frontier, current, t.SpawnYear, t.Theme, first)
		first = false
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			current++
			continue
		}

		s.emit("Ranking candidates", frontier.Title, -1)
		ranked, err := s.engine.RankByRelevance(ctx, candidates, t.Theme, frontier)
		if err != nil {
			return err
		}
		s.decisions.Add(DecisionRanking, "candidates ranked", map[string]any{
			"thread": t.ID, "candidates": len(candidates), "ranked": len(ranked),
		})

		s.emit("Selecting successors", t.Theme, -1)
		selected, err := s.engine.SelectSuccessors(ctx, ranked, t, s.seeds)
		if err != nil {
			return err
		}

		added := 0
		for _, p := range selected {
			if err := s.checkCancel(ctx); err != nil {
				return err
			}

			if s.isClaimed(p) {
				s.decisions.Add(DecisionSkip, "candidate already claimed by another thread",
					map[string]any{"paper": p.Title, "thread": t.ID})
				continue
			}
			if s.cfg.MaxPerYear > 0 && t.PapersInYear(p.Year) >= s.cfg.MaxPerYear {
				s.decisions.Add(DecisionSkip, "per-year cap reached",
					map[string]any{"paper": p.Title, "thread": t.ID, "year": p.Year})
				continue
			}

			s.claim(p)
			t.Append(p, p.SelectionReason)
			if p.Year > current {
				current = p.Year
			}
			added++
			s.decisions.Add(DecisionSelection, "paper added to thread", map[string]any{
				"paper": p.Title, "year": p.Year, "thread": t.ID, "reason": p.SelectionReason,
			})
			s.emit("Added paper", p.Title, -1)

			if err := s.maybeSpawnSubThread(ctx, t, p); err != nil {
				return err
			}
			if len(t.Papers) >= s.cfg.MaxPapersPerThread {
				break
			}
		}

		if added == 0 {
			current++
		}
	}
	return nil
}

// maybeSpawnSubThread runs the divergence gate for a newly added paper
// and, on a yes, spawns and fully expands a child thread before
// returning. Divergence-check failures cost only the check; a failed
// child expansion costs only the child.
func (s *Session) maybeSpawnSubThread(ctx context.Context, parent *paper.Thread, p paper.Paper) error {
	s.emit("Checking divergence", p.Title, -1)
	d, err := s.engine.DetectDivergence(ctx, p, parent.Theme, s.seeds)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return err
		}
		s.decisions.Add(DecisionError, "divergence check failed, assuming no divergence",
			map[string]any{"paper": p.Title, "error": err.Error()})
		return nil
	}
	s.decisions.Add(DecisionDivergence, "divergence decision", map[string]any{
		"paper": p.Title, "divergence": d.IsDivergence, "newTheme": d.NewTheme, "reason": d.Reason,
	})
	if !d.IsDivergence {
		return nil
	}
	if s.threadCount >= s.cfg.MaxThreads {
		s.decisions.Add(DecisionSkip, "thread cap reached, not spawning sub-thread",
			map[string]any{"paper": p.Title, "newTheme": d.NewTheme})
		return nil
	}

	// The divergent paper seeds the child; it stays in the parent too.
	// The dedupe set guards candidate selection, not spawn seeding.
	sub := paper.NewThread(d.NewTheme, p)
	s.threadCount++
	parent.SubThreads = append(parent.SubThreads, sub)
	s.emit("Spawned sub-thread", d.NewTheme, -1)

	if err := s.expand(ctx, sub, p.Year); err != nil {
		if errors.Is(err, ErrCancelled) {
			return err
		}
		// The child keeps whatever it grew; the parent carries on.
		s.decisions.Add(DecisionError, "sub-thread expansion aborted",
			map[string]any{"thread": sub.ID, "error": err.Error()})
	}
	return nil
}
