package relevance

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/matsen/lineage/internal/oracle"
	"github.com/matsen/lineage/internal/paper"
	"github.com/tmc/langchaingo/llms"
)

// scriptedOracle replays canned responses and records every prompt.
type scriptedOracle struct {
	responses []string
	prompts   []string
	err       error
}

func (o *scriptedOracle) Complete(ctx context.Context, prompt string) (string, error) {
	o.prompts = append(o.prompts, prompt)
	if o.err != nil {
		return "", o.err
	}
	if len(o.responses) == 0 {
		return "", errors.New("scripted oracle exhausted")
	}
	resp := o.responses[0]
	o.responses = o.responses[1:]
	return resp, nil
}

func (o *scriptedOracle) CompleteWithTools(ctx context.Context, msgs []llms.MessageContent, tools []llms.Tool) (*oracle.ToolResult, error) {
	return nil, errors.New("not scripted")
}

func somePapers(n int) []paper.Paper {
	papers := make([]paper.Paper, n)
	for i := range papers {
		papers[i] = paper.Paper{
			ID:    string(rune('a' + i)),
			Title: "Paper " + string(rune('A'+i)),
			Year:  2018 + i,
		}
	}
	return papers
}

func TestExtractThemes(t *testing.T) {
	o := &scriptedOracle{responses: []string{
		"```json\n[{\"description\": \"theme one\", \"keywords\": [\"a\"]}, {\"description\": \"theme two\"}]\n```",
	}}
	e := NewEngine(o)
	themes, err := e.ExtractThemes(context.Background(), paper.Paper{Title: "Seed"})
	if err != nil {
		t.Fatal(err)
	}
	if len(themes) != 2 || themes[0].Description != "theme one" {
		t.Errorf("got %+v", themes)
	}
}

func TestExtractThemesUnparseableIsEmptyNotFatal(t *testing.T) {
	o := &scriptedOracle{responses: []string{"I could not find any themes, sorry!"}}
	e := NewEngine(o)
	themes, err := e.ExtractThemes(context.Background(), paper.Paper{Title: "Seed"})
	if err != nil {
		t.Fatalf("unparseable themes must not be fatal: %v", err)
	}
	if len(themes) != 0 {
		t.Errorf("expected no themes, got %+v", themes)
	}
	if len(o.prompts) != 1 {
		t.Errorf("theme extraction must not retry, got %d prompts", len(o.prompts))
	}
}

func TestRankByRelevanceCleanPath(t *testing.T) {
	candidates := somePapers(4)
	o := &scriptedOracle{responses: []string{"```json\n[3, 1, 9, 3, 2,\n```"}}
	e := NewEngine(o)

	ranked, err := e.RankByRelevance(context.Background(), candidates, "theme", candidates[0])
	if err != nil {
		t.Fatal(err)
	}
	// 9 is out of range, the second 3 is a duplicate; both dropped silently.
	wantTitles := []string{"Paper C", "Paper A", "Paper B"}
	if len(ranked) != len(wantTitles) {
		t.Fatalf("got %d ranked, want %d", len(ranked), len(wantTitles))
	}
	for i, w := range wantTitles {
		if ranked[i].Title != w {
			t.Errorf("ranked[%d] = %s, want %s", i, ranked[i].Title, w)
		}
	}
	if len(o.prompts) != 1 {
		t.Errorf("deterministic cleanup must not trigger repair, got %d prompts", len(o.prompts))
	}
}

func TestRankByRelevanceRepairPath(t *testing.T) {
	candidates := somePapers(3)
	o := &scriptedOracle{responses: []string{
		"the best papers are one and three",
		"[1, 3]",
	}}
	e := NewEngine(o)

	ranked, err := e.RankByRelevance(context.Background(), candidates, "theme", candidates[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(ranked) != 2 || ranked[0].Title != "Paper A" {
		t.Errorf("got %+v", ranked)
	}
	if len(o.prompts) != 2 {
		t.Fatalf("expected exactly one repair prompt, got %d prompts", len(o.prompts))
	}
	if !strings.Contains(o.prompts[1], "the best papers are one and three") {
		t.Error("repair prompt must carry the raw broken text")
	}
}

func TestRankByRelevanceRepairEscalation(t *testing.T) {
	candidates := somePapers(3)
	o := &scriptedOracle{responses: []string{
		"first broken response",
		"still broken",
	}}
	e := NewEngine(o)

	_, err := e.RankByRelevance(context.Background(), candidates, "theme", candidates[0])
	var perr *RankingParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected RankingParseError, got %v", err)
	}
	if perr.Raw != "first broken response" || perr.RepairRaw != "still broken" {
		t.Errorf("error must carry both raw responses: %+v", perr)
	}
	if len(o.prompts) != 2 {
		t.Errorf("expected exactly one repair attempt, got %d prompts", len(o.prompts))
	}
}

func TestSelectSuccessors(t *testing.T) {
	ranked := somePapers(4)
	th := paper.NewThread("theme", paper.Paper{ID: "seed", Title: "Seed", Year: 2017})
	o := &scriptedOracle{responses: []string{`[
		{"index": 1, "decision": "ADD", "reason": "same lab"},
		{"index": 2, "decision": "SKIP", "reason": "adjacent only"},
		{"index": 4, "decision": "ADD", "reason": "cites the frontier"}
	]`}}
	e := NewEngine(o)

	selected, err := e.SelectSuccessors(context.Background(), ranked, th, []paper.Paper{th.SpawnPaper})
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(selected))
	}
	if selected[0].SelectionReason != "same lab" {
		t.Errorf("selection reason not attached: %+v", selected[0])
	}
	if selected[1].Title != "Paper D" {
		t.Errorf("got %+v", selected[1])
	}
}

func TestSelectSuccessorsCapsAdds(t *testing.T) {
	ranked := somePapers(8)
	th := paper.NewThread("theme", paper.Paper{ID: "seed", Title: "Seed", Year: 2017})
	var sb strings.Builder
	sb.WriteString("[")
	for i := 1; i <= 8; i++ {
		if i > 1 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"index": ` + string(rune('0'+i)) + `, "decision": "ADD", "reason": "r"}`)
	}
	sb.WriteString("]")
	o := &scriptedOracle{responses: []string{sb.String()}}
	e := NewEngine(o)

	selected, err := e.SelectSuccessors(context.Background(), ranked, th, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) != DefaultMaxPerIteration {
		t.Errorf("expected cap of %d, got %d", DefaultMaxPerIteration, len(selected))
	}
}

func TestSelectSuccessorsDegradesOnParseFailure(t *testing.T) {
	ranked := somePapers(5)
	th := paper.NewThread("theme", paper.Paper{ID: "seed", Title: "Seed", Year: 2017})
	o := &scriptedOracle{responses: []string{"I refuse to answer in JSON."}}
	e := NewEngine(o)

	selected, err := e.SelectSuccessors(context.Background(), ranked, th, nil)
	if err != nil {
		t.Fatalf("selection parse failure must degrade, not fail: %v", err)
	}
	if len(selected) != 3 {
		t.Fatalf("expected top-3 fallback, got %d", len(selected))
	}
	for _, p := range selected {
		if p.SelectionReason != FallbackReason {
			t.Errorf("fallback reason not attached: %+v", p)
		}
	}
}

func TestDetectDivergence(t *testing.T) {
	o := &scriptedOracle{responses: []string{
		`{"isDivergence": true, "newTheme": "efficient attention", "reason": "distinct descendant direction"}`,
	}}
	e := NewEngine(o)
	d, err := e.DetectDivergence(context.Background(), paper.Paper{Title: "P"}, "parent theme", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsDivergence || d.NewTheme != "efficient attention" {
		t.Errorf("got %+v", d)
	}
}

func TestDetectDivergenceDefaultsToNo(t *testing.T) {
	// Unparseable and theme-less claims both collapse to no.
	for _, resp := range []string{
		"maybe? it is hard to say",
		`{"isDivergence": true, "newTheme": ""}`,
	} {
		o := &scriptedOracle{responses: []string{resp}}
		e := NewEngine(o)
		d, err := e.DetectDivergence(context.Background(), paper.Paper{Title: "P"}, "parent", nil)
		if err != nil {
			t.Fatal(err)
		}
		if d.IsDivergence {
			t.Errorf("response %q should default to no divergence", resp)
		}
		if d.Reason == "" {
			t.Errorf("divergence decision must carry a justification")
		}
	}
}

func TestCriteriaOverrideReachesPrompts(t *testing.T) {
	o := &scriptedOracle{responses: []string{"[1]"}}
	e := NewEngine(o)
	e.Criteria = "Cluster by shared benchmark datasets only."

	_, err := e.RankByRelevance(context.Background(), somePapers(2), "theme", somePapers(1)[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(o.prompts[0], "shared benchmark datasets") {
		t.Error("criteria override must replace the default rubric in prompts")
	}
}
