package s2

import (
	"regexp"
	"strings"
)

// Identifier prefixes accepted by the Graph API.
var identifierPrefixes = []string{
	"DOI:",
	"ARXIV:",
	"PMID:",
	"PMCID:",
	"CorpusId:",
	"URL:",
}

// s2IDPattern matches a 40-character hex string (raw S2 paper ID).
var s2IDPattern = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

// PaperIdentifier is a typed paper identifier.
type PaperIdentifier struct {
	Type  string
	Value string
}

// IsExternalID reports whether the identifier can be sent to the API
// directly, without title resolution.
func (p PaperIdentifier) IsExternalID() bool {
	return p.Type != "TITLE"
}

func (p PaperIdentifier) String() string {
	if p.Type == "S2" || p.Type == "TITLE" {
		return p.Value
	}
	return p.Type + ":" + p.Value
}

// ParsePaperID parses a paper identifier string. Supported formats:
//   - DOI:10.1038/nature12373
//   - ARXIV:2106.15928
//   - PMID:19872477
//   - CorpusId:215416146
//   - URL:https://arxiv.org/abs/2106.15928
//   - Raw 40-character S2 paper ID
//
// Anything else is treated as a title that needs resolution via search.
func ParsePaperID(id string) PaperIdentifier {
	id = strings.TrimSpace(id)

	for _, prefix := range identifierPrefixes {
		if strings.HasPrefix(strings.ToUpper(id), strings.ToUpper(prefix)) {
			return PaperIdentifier{
				Type:  strings.TrimSuffix(prefix, ":"),
				Value: id[len(prefix):],
			}
		}
	}

	if s2IDPattern.MatchString(id) {
		return PaperIdentifier{Type: "S2", Value: id}
	}

	return PaperIdentifier{Type: "TITLE", Value: id}
}

// PlausibleID reports whether id looks like a usable paper identifier.
// Some upstream records carry truncated or placeholder IDs; those need
// re-resolution by title before any per-paper endpoint will accept them.
func PlausibleID(id string) bool {
	id = strings.TrimSpace(id)
	if len(id) < 8 {
		return false
	}
	return ParsePaperID(id).Type != "TITLE"
}

// NormalizeDOI normalizes a DOI for comparison: strips URL and DOI:
// prefixes and lowercases.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	doi = strings.TrimPrefix(doi, "https://doi.org/")
	doi = strings.TrimPrefix(doi, "http://doi.org/")
	doi = strings.TrimPrefix(doi, "doi.org/")
	doi = strings.TrimPrefix(doi, "DOI:")
	return strings.ToLower(doi)
}
