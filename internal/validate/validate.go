// Package validate holds the listing-candidate quality heuristic.
package validate

import (
	"strings"

	"github.com/JakeFAU/opinionscan/internal/crawler"
)

// DefaultMaxInvalid is the invalid-field count at which an item is rejected.
const DefaultMaxInvalid = 3

// placeholders are values connectors substitute for missing data.
var placeholders = map[string]struct{}{
	"unknown source": {},
	"no title":       {},
	"未知来源":           {},
	"无标题":            {},
}

// Validator rejects candidates with too many blank or placeholder fields.
type Validator struct {
	maxInvalid int
}

// New builds a Validator; maxInvalid <= 0 selects DefaultMaxInvalid.
func New(maxInvalid int) *Validator {
	if maxInvalid <= 0 {
		maxInvalid = DefaultMaxInvalid
	}
	return &Validator{maxInvalid: maxInvalid}
}

// IsValid reports whether fewer than maxInvalid fields are invalid.
func (v *Validator) IsValid(item crawler.CandidateItem) bool {
	return InvalidFields(item) < v.maxInvalid
}

// InvalidFields counts the invalid values among original URL, cover,
// source, title and summary.
func InvalidFields(item crawler.CandidateItem) int {
	count := 0
	for _, value := range []string{item.OriginalURL, item.Cover, item.Source, item.Title, item.Summary} {
		if invalid(value) {
			count++
		}
	}
	return count
}

func invalid(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return true
	}
	_, ok := placeholders[value]
	return ok
}
