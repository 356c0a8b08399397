package s2

// S2Author is an author record as returned by the Graph API.
type S2Author struct {
	AuthorID string `json:"authorId"`
	Name     string `json:"name"`
}

// S2Paper is a paper record as returned by the Graph API. Year is a
// pointer because S2 omits it for some preprints.
type S2Paper struct {
	PaperID       string     `json:"paperId"`
	Title         string     `json:"title"`
	Abstract      string     `json:"abstract"`
	Year          *int       `json:"year"`
	Authors       []S2Author `json:"authors"`
	CitationCount int        `json:"citationCount"`
}

// searchResponse wraps /paper/search results.
type searchResponse struct {
	Total int       `json:"total"`
	Data  []S2Paper `json:"data"`
}

// citationsResponse wraps /paper/{id}/citations results.
type citationsResponse struct {
	Offset int `json:"offset"`
	Next   int `json:"next"`
	Data   []struct {
		CitingPaper S2Paper `json:"citingPaper"`
	} `json:"data"`
}

// referencesResponse wraps /paper/{id}/references results.
type referencesResponse struct {
	Data []struct {
		CitedPaper S2Paper `json:"citedPaper"`
	} `json:"data"`
}

// recommendationsResponse wraps /recommendations/v1/papers/forpaper results.
type recommendationsResponse struct {
	RecommendedPapers []S2Paper `json:"recommendedPapers"`
}

// authorPapersResponse wraps /author/{id}/papers results.
type authorPapersResponse struct {
	Data []S2Paper `json:"data"`
}
