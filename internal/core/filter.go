package core

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FilterCriteria holds the named predicates of the table view.
// An empty value means the predicate is not applied.
type FilterCriteria struct {
	Search   string `json:"search,omitempty"`
	Hometown string `json:"hometown,omitempty"`
	Grade    Grade  `json:"grade,omitempty"`
}

// IsEmpty reports whether no predicate is active.
func (c FilterCriteria) IsEmpty() bool {
	return strings.TrimSpace(c.Search) == "" &&
		strings.TrimSpace(c.Hometown) == "" &&
		c.Grade == GradeNone
}

// Filter returns the records matching every active predicate, in their
// original order. The input is not modified. With empty criteria the input
// slice itself is returned.
func Filter(records []StudentRecord, c FilterCriteria) []StudentRecord {
	if c.IsEmpty() {
		return records
	}

	term := foldText(strings.TrimSpace(c.Search))
	hometown := strings.TrimSpace(c.Hometown)

	out := make([]StudentRecord, 0, len(records))
	for _, r := range records {
		if term != "" && !matchesSearch(r, term) {
			continue
		}
		if hometown != "" && strings.TrimSpace(r.Hometown) != hometown {
			continue
		}
		// Records without a grade never match a grade filter.
		if c.Grade != GradeNone && (r.Grade == GradeNone || r.Grade != c.Grade) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// matchesSearch reports whether any searchable attribute contains term.
// term must already be folded.
func matchesSearch(r StudentRecord, term string) bool {
	candidates := [...]string{
		r.StudentCode,
		r.FirstName,
		r.LastName,
		r.FullName(),
		r.Email,
		r.Hometown,
	}
	for _, v := range candidates {
		if v == "" {
			continue
		}
		if strings.Contains(foldText(v), term) {
			return true
		}
	}
	return false
}

// foldText normalizes s to NFC and lowercases it, so precomposed and
// decomposed diacritics compare equal.
func foldText(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}
