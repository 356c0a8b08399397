package s2

import "github.com/matsen/lineage/internal/paper"

// MapPaper converts an S2 wire record to the internal paper model.
// A missing year stays 0; callers that need chronology estimate it from
// context (the expander's year window tolerates this).
func MapPaper(sp S2Paper) paper.Paper {
	p := paper.Paper{
		ID:            sp.PaperID,
		Title:         sp.Title,
		Abstract:      sp.Abstract,
		CitationCount: sp.CitationCount,
	}
	if sp.Year != nil {
		p.Year = *sp.Year
	}
	for _, a := range sp.Authors {
		p.Authors = append(p.Authors, paper.Author{Name: a.Name, AuthorID: a.AuthorID})
	}
	return p
}

// MapPapers converts a batch, dropping records without a title. S2
// returns titleless tombstones for withdrawn papers; they carry no
// identity under the id-else-title rule and cannot be deduplicated.
func MapPapers(sps []S2Paper) []paper.Paper {
	papers := make([]paper.Paper, 0, len(sps))
	for _, sp := range sps {
		if sp.Title == "" {
			continue
		}
		papers = append(papers, MapPaper(sp))
	}
	return papers
}
