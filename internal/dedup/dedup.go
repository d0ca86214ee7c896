// Package dedup finds documents whose set of distinct terms repeats that of
// an earlier document. Term frequencies and ratings are ignored.
package dedup

import (
	"maps"
	"slices"
	"strings"
)

// Corpus is the view of an index needed to detect and drop duplicates.
type Corpus interface {
	IDs() []int
	TermFrequencies(id int) map[string]float64
	RemoveDocument(id int)
}

// FindDuplicates walks the corpus in insertion order and returns the id of
// every document whose term set was already seen. The first holder of a term
// set is kept.
func FindDuplicates(c Corpus) []int {
	seen := make(map[string]struct{})
	var duplicates []int
	for _, id := range c.IDs() {
		key := termSetKey(c.TermFrequencies(id))
		if _, ok := seen[key]; ok {
			duplicates = append(duplicates, id)
			continue
		}
		seen[key] = struct{}{}
	}
	return duplicates
}

// RemoveDuplicates removes what FindDuplicates reports and returns the
// removed ids.
func RemoveDuplicates(c Corpus) []int {
	duplicates := FindDuplicates(c)
	for _, id := range duplicates {
		c.RemoveDocument(id)
	}
	return duplicates
}

// termSetKey joins the sorted terms with NUL, which can never appear inside
// a valid term.
func termSetKey(freqs map[string]float64) string {
	terms := slices.Sorted(maps.Keys(freqs))
	return strings.Join(terms, "\x00")
}
