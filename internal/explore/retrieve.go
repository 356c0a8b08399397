package explore

import (
	"context"
	"fmt"
	"sort"

	"github.com/matsen/lineage/internal/paper"
	"github.com/matsen/lineage/internal/s2"
)

const (
	// recentAgeYears is the grace window of the quality filter: papers
	// this young are kept regardless of citation count, because they
	// have not had time to accumulate citations.
	recentAgeYears = 2

	// minCitationsOlder is the citation floor for papers past the grace
	// window.
	minCitationsOlder = 5

	// lookbackSlack widens the year window below minYear to tolerate
	// noisy publication-date metadata.
	lookbackSlack = 2

	// recencyWeight scores a year of recency against citations when the
	// candidate cap forces truncation.
	recencyWeight = 5
)

// broadQueries is the fixed query list used for the first expansion of a
// thread. Each targets a different way a lineage continues: direct
// successors, scaled-up versions, and alternate paradigms.
func broadQueries(theme string) []string {
	return []string{
		theme,
		theme + " improved methods",
		theme + " scaling",
		theme + " alternative approaches",
	}
}

// retrieveCandidates builds the deduplicated, quality-filtered,
// year-windowed candidate list for one frontier paper. Dedupe against
// papers already claimed by threads happens at insertion time, not here:
// a candidate may legitimately be considered by sibling threads before
// one claims it.
func (s *Session) retrieveCandidates(ctx context.Context, frontier paper.Paper, minYear, seedYear int, theme string, firstExpansion bool) ([]paper.Paper, error) {
	id := frontier.ID
	if !s2.PlausibleID(id) {
		resolved, err := s.source.ResolveID(ctx, frontier.Title)
		if err != nil {
			if s2.IsNotFound(err) {
				s.decisions.Add(DecisionRetrieval, "frontier paper unresolvable, no candidates",
					map[string]any{"title": frontier.Title})
				return nil, nil
			}
			return nil, fmt.Errorf("resolving frontier paper: %w", err)
		}
		id = resolved
	}

	merged := make(map[paper.Key]paper.Paper)
	order := make([]paper.Key, 0, 64)
	add := func(papers []paper.Paper, source string) {
		for _, p := range papers {
			s.recordSeen(p, source)
			key := p.Identity()
			if _, ok := merged[key]; ok {
				continue // first-seen wins on conflicting metadata
			}
			merged[key] = p
			order = append(order, key)
		}
	}

	// Citations first: they are the higher-confidence provenance, so
	// they win the first-seen merge.
	s.emit("Fetching citations", frontier.Title, -1)
	citing, err := s.source.Citations(ctx, id)
	if err != nil {
		return nil, err
	}
	add(citing, "citations")

	s.emit("Fetching recommendations", frontier.Title, -1)
	recs, err := s.source.Recommendations(ctx, id)
	if err != nil {
		// Recommendations are enrichment; citations already succeeded.
		s.decisions.Add(DecisionError, "recommendations unavailable, continuing with citations",
			map[string]any{"paper": frontier.Title, "error": err.Error()})
	} else {
		add(recs, "recommendations")
	}

	if firstExpansion && s.cfg.BroadSearch {
		for _, q := range broadQueries(theme) {
			if err := s.checkCancel(ctx); err != nil {
				return nil, err
			}
			s.emit("Broad search", q, -1)
			found, err := s.source.Search(ctx, q, minYear)
			if err != nil {
				s.decisions.Add(DecisionError, "broad search failed, continuing",
					map[string]any{"query": q, "error": err.Error()})
				continue
			}
			add(found, "search")
		}
	}

	// Quality filter: protect recent papers, demand citations of old ones.
	// Year window: lookback slack below minYear, floored at the year
	// before the thread spawned, capped at the present.
	effectiveMin := minYear - lookbackSlack
	if floor := seedYear - 1; floor > effectiveMin {
		effectiveMin = floor
	}

	var candidates []paper.Paper
	for _, key := range order {
		p := merged[key]
		age := s.cfg.PresentYear - p.Year
		if age > recentAgeYears && p.CitationCount < minCitationsOlder {
			continue
		}
		if p.Year < effectiveMin || p.Year > s.cfg.PresentYear {
			continue
		}
		candidates = append(candidates, p)
	}

	// Oldest first, so ranking and selection see lineage order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Year < candidates[j].Year
	})

	// Cost control: when a prolific frontier floods us, keep the best
	// scored candidates and restore chronological order.
	if s.cfg.CandidateCap > 0 && len(candidates) > s.cfg.CandidateCap {
		score := func(p paper.Paper) int {
			return p.CitationCount + recencyWeight*(p.Year-effectiveMin)
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return score(candidates[i]) > score(candidates[j])
		})
		candidates = candidates[:s.cfg.CandidateCap]
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Year < candidates[j].Year
		})
	}

	s.decisions.Add(DecisionRetrieval, "candidates retrieved", map[string]any{
		"frontier":   frontier.Title,
		"minYear":    minYear,
		"effMinYear": effectiveMin,
		"merged":     len(merged),
		"kept":       len(candidates),
	})
	return candidates, nil
}
