// Package paper defines the bibliographic data model shared by the
// retrieval and exploration packages.
package paper

import "strings"

// Author is one author of a paper.
type Author struct {
	Name     string `json:"name"`
	AuthorID string `json:"authorId,omitempty"`
}

// Paper represents one bibliographic work. Papers are immutable once
// placed in a thread; only SelectionReason is attached at insertion time.
type Paper struct {
	ID              string   `json:"paperId,omitempty"`
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract,omitempty"`
	Year            int      `json:"year"`
	Authors         []Author `json:"authors,omitempty"`
	CitationCount   int      `json:"citationCount"`
	SelectionReason string   `json:"selectionReason,omitempty"`
}

// Key is a paper identity: the stable external ID when known, otherwise
// the exact title. Two papers are the same entity iff their keys match.
type Key string

// Identity returns the dedupe key for a paper.
func (p Paper) Identity() Key {
	if p.ID != "" {
		return Key("id:" + p.ID)
	}
	return Key("title:" + p.Title)
}

// Keys returns every key this paper answers to. A paper carrying both
// an ID and a title registers under both, so an id-less record of the
// same work still matches it.
func (p Paper) Keys() []Key {
	if p.ID != "" && p.Title != "" {
		return []Key{Key("id:" + p.ID), Key("title:" + p.Title)}
	}
	return []Key{p.Identity()}
}

// Same reports whether two papers are the same entity: matching IDs, or
// matching titles when either side has no ID.
func (p Paper) Same(other Paper) bool {
	if p.ID != "" && other.ID != "" {
		return p.ID == other.ID
	}
	return p.Title == other.Title
}

// FirstAuthor returns the first author name, or "" if unknown.
func (p Paper) FirstAuthor() string {
	if len(p.Authors) == 0 {
		return ""
	}
	return p.Authors[0].Name
}

// AuthorNames returns a comma-separated author list capped at max names.
func (p Paper) AuthorNames(max int) string {
	names := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		names = append(names, a.Name)
	}
	if max > 0 && len(names) > max {
		names = append(names[:max], "et al.")
	}
	return strings.Join(names, ", ")
}

// Theme is a short natural-language description of a coherent research
// direction extracted from one paper.
type Theme struct {
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
}
