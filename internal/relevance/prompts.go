package relevance

import (
	"fmt"
	"strings"

	"github.com/matsen/lineage/internal/paper"
)

// defaultCriteria is the lineage-definition rubric used when no override
// is configured. The priority order matters: shared authorship beats
// citation links beats raw popularity beats recency.
const defaultCriteria = `A paper continues a research lineage when it builds directly on the
thread's specific technical contributions. Judge lineage strength in this
priority order:
1. Shared authorship or lab with papers already in the thread
2. Direct citation of papers in the lineage
3. High citation count for work building on the theme
4. Topical recency`

const abstractPreviewLen = 600

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func describePaper(p paper.Paper) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q (%d) by %s; %d citations", p.Title, p.Year, p.AuthorNames(4), p.CitationCount)
	if p.Abstract != "" {
		fmt.Fprintf(&b, "\nAbstract: %s", truncateText(p.Abstract, abstractPreviewLen))
	}
	return b.String()
}

func listCandidates(candidates []paper.Paper) string {
	var b strings.Builder
	for i, p := range candidates {
		fmt.Fprintf(&b, "%d. %q (%d) by %s; %d citations\n", i+1, p.Title, p.Year, p.AuthorNames(3), p.CitationCount)
	}
	return b.String()
}

func buildThemesPrompt(p paper.Paper) string {
	return fmt.Sprintf(`Identify the 2-4 distinct research directions (themes) that the
following paper opens or continues. A theme is a coherent line of work a
successor paper could build on, not a keyword.

Paper: %s

Return ONLY a JSON array, no other text:
[{"description": "one-sentence theme description", "keywords": ["k1", "k2"]}]`,
		describePaper(p))
}

func buildRankingPrompt(candidates []paper.Paper, theme string, frontier paper.Paper, criteria string) string {
	return fmt.Sprintf(`You are tracing a research lineage.

Theme: %s
Current frontier paper: %s

%s

Candidate successor papers:
%s
Order the candidates from strongest to weakest continuation of this
lineage. Return ONLY a JSON array of candidate numbers, e.g. [3, 1, 7].
Omit candidates that clearly do not continue the lineage.`,
		theme, describePaper(frontier), criteria, listCandidates(candidates))
}

func buildRepairPrompt(broken string) string {
	return fmt.Sprintf(`The following was supposed to be a JSON array of integers but does
not parse. Reply with ONLY the corrected JSON array and nothing else.

%s`, broken)
}

func buildSelectionPrompt(candidates []paper.Paper, t *paper.Thread, seeds []paper.Paper, criteria string) string {
	var threadPapers strings.Builder
	for _, p := range t.Papers {
		fmt.Fprintf(&threadPapers, "- %q (%d)\n", p.Title, p.Year)
	}
	var seedList strings.Builder
	for _, p := range seeds {
		fmt.Fprintf(&seedList, "- %s\n", describePaper(p))
	}

	return fmt.Sprintf(`You are growing a research lineage thread.

Theme: %s
Seed papers of this analysis:
%sPapers already in the thread (chronological):
%s
%s

Candidates (already ranked, strongest first):
%s
For each candidate decide ADD or SKIP with a one-sentence reason. ADD only
papers that genuinely continue the thread's specific line of work.

Return ONLY a JSON array, no other text:
[{"index": 1, "decision": "ADD", "reason": "one sentence"}]`,
		t.Theme, seedList.String(), threadPapers.String(), criteria, listCandidates(candidates))
}

func buildClusterPrompt(leftovers []paper.Paper, seeds []paper.Paper, maxClusters int, criteria string) string {
	var seedList strings.Builder
	for _, p := range seeds {
		fmt.Fprintf(&seedList, "- %q (%d)\n", p.Title, p.Year)
	}

	return fmt.Sprintf(`During a lineage analysis the following papers were retrieved but not
placed into any thread. Propose at most %d coherent research lineages
among them, if any exist. It is fine to propose none.

Seed papers of the analysis:
%s
%s

Leftover papers:
%s
Return ONLY a JSON array, no other text. Each cluster lists the paper
numbers that belong to it, strongest-signal papers only:
[{"theme": "one-sentence theme", "indices": [3, 7, 12]}]`,
		maxClusters, seedList.String(), criteria, listCandidates(leftovers))
}

func buildDivergencePrompt(candidate paper.Paper, parentTheme string, seeds []paper.Paper, criteria string) string {
	var seedList strings.Builder
	for _, p := range seeds {
		fmt.Fprintf(&seedList, "- %s\n", describePaper(p))
	}

	return fmt.Sprintf(`A paper was just added to a research lineage thread. Decide whether it
opens a sufficiently distinct NEW direction to justify a separate
sub-thread.

Parent thread theme: %s
Seed papers of this analysis:
%sNewly added paper: %s

%s

Be strict and conservative: answer yes only if the new direction is a
technical descendant of the specific contributions of the seed papers,
not merely topically adjacent. When in doubt, answer no.

Return ONLY a JSON object, no other text:
{"isDivergence": false, "newTheme": "", "reason": "one sentence"}`,
		parentTheme, seedList.String(), describePaper(candidate), criteria)
}
