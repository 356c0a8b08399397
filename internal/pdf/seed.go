// Package pdf pulls seed paper identifiers out of PDF files, so an
// analysis can start from a paper on disk instead of a typed-in ID.
package pdf

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoSeed indicates a PDF yielded neither a DOI nor a usable title.
var ErrNoSeed = errors.New("no DOI or title found in PDF")

// SeedRef identifies a seed paper extracted from a PDF. DOI is preferred
// when present; Title is the fallback for a title-match lookup.
type SeedRef struct {
	DOI   string
	Title string
}

// DOI pattern: 10.XXXX/... where XXXX is 4+ digits
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// ExtractSeedRef scans the front matter of a PDF for a DOI and a
// probable title. Returns ErrNoSeed when neither is found.
func ExtractSeedRef(filePath string) (SeedRef, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return SeedRef{}, err
	}
	defer f.Close()

	var ref SeedRef

	// DOIs live in the front matter; three pages covers preprint cover
	// sheets.
	maxPages := 3
	if r.NumPage() < maxPages {
		maxPages = r.NumPage()
	}
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if i == 1 {
			ref.Title = findTitle(text)
		}
		if ref.DOI == "" {
			ref.DOI = findDOI(text)
		}
	}

	if ref.DOI == "" && ref.Title == "" {
		return SeedRef{}, ErrNoSeed
	}
	return ref, nil
}

// findDOI returns the first valid DOI in text.
func findDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:)")
		if isValidDOI(match) {
			return match
		}
	}
	return ""
}

func isValidDOI(doi string) bool {
	if len(doi) < 10 {
		return false
	}
	if !strings.HasPrefix(doi, "10.") {
		return false
	}
	slashIdx := strings.Index(doi, "/")
	return slashIdx != -1 && slashIdx < len(doi)-1
}

// findTitle picks the first substantial first-page line that does not
// look like journal boilerplate. Best effort; a wrong guess only costs
// one failed title-match lookup.
func findTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 && !isHeaderLine(line) {
			return line
		}
	}
	return ""
}

// isHeaderLine checks if a line is likely a header/footer.
func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "journal") {
		return true
	}
	if strings.Contains(lower, "volume") && strings.Contains(lower, "issue") {
		return true
	}
	if strings.Contains(lower, "copyright") {
		return true
	}
	if strings.Contains(lower, "article") && strings.Contains(lower, "published") {
		return true
	}
	return false
}
