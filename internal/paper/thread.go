package paper

import "github.com/google/uuid"

// Thread is one research lineage: an ordered chronological sequence of
// papers believed to continue one theme, plus any spawned sub-threads.
// Threads are mutated append-only by the expander and are read-only once
// their expansion completes.
type Thread struct {
	ID         string    `json:"id"`
	Theme      string    `json:"theme"`
	SpawnYear  int       `json:"spawnYear"`
	SpawnPaper Paper     `json:"spawnPaper"`
	Papers     []Paper   `json:"papers"`
	SubThreads []*Thread `json:"subThreads,omitempty"`
}

// NewThread creates a thread seeded with its spawn paper, so Papers is
// never empty after creation.
func NewThread(theme string, spawn Paper) *Thread {
	return &Thread{
		ID:         uuid.NewString(),
		Theme:      theme,
		SpawnYear:  spawn.Year,
		SpawnPaper: spawn,
		Papers:     []Paper{spawn},
	}
}

// Frontier returns the most recently added paper, the anchor for the next
// round of candidate retrieval.
func (t *Thread) Frontier() Paper {
	return t.Papers[len(t.Papers)-1]
}

// Append adds a paper with the reason an automated process chose it.
func (t *Thread) Append(p Paper, reason string) {
	p.SelectionReason = reason
	t.Papers = append(t.Papers, p)
}

// PapersInYear counts papers in the thread published in the given year.
func (t *Thread) PapersInYear(year int) int {
	n := 0
	for _, p := range t.Papers {
		if p.Year == year {
			n++
		}
	}
	return n
}

// Grew reports whether the thread grew beyond its spawn paper or produced
// sub-threads. Threads that did neither are discarded from final output.
func (t *Thread) Grew() bool {
	return len(t.Papers) > 1 || len(t.SubThreads) > 0
}

// Summary is a read-only projection of a thread suitable for live display.
type Summary struct {
	ID         string      `json:"id"`
	Theme      string      `json:"theme"`
	SpawnYear  int         `json:"spawnYear"`
	SpawnTitle string      `json:"spawnTitle"`
	Papers     []PaperLine `json:"papers"`
	SubThreads []Summary   `json:"subThreads,omitempty"`
}

// PaperLine is one paper row in a thread summary.
type PaperLine struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
}

// Summarize builds the display projection for a thread and its children.
func (t *Thread) Summarize() Summary {
	s := Summary{
		ID:         t.ID,
		Theme:      t.Theme,
		SpawnYear:  t.SpawnYear,
		SpawnTitle: t.SpawnPaper.Title,
	}
	for _, p := range t.Papers {
		s.Papers = append(s.Papers, PaperLine{Title: p.Title, Year: p.Year})
	}
	for _, sub := range t.SubThreads {
		s.SubThreads = append(s.SubThreads, sub.Summarize())
	}
	return s
}
