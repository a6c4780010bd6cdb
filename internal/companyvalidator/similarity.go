package companyvalidator

import "github.com/agnivade/levenshtein"

// similarity returns a Levenshtein-based similarity score normalized to
// [0,100], per spec.md §4.4: "Fuzzy scoring uses Levenshtein-like
// similarity normalized to [0,100]." Two empty strings are treated as an
// exact match.
func similarity(a, b string) int {
	if a == b {
		return 100
	}
	maxLen := len([]rune(a))
	if bl := len([]rune(b)); bl > maxLen {
		maxLen = bl
	}
	if maxLen == 0 {
		return 100
	}

	dist := levenshtein.ComputeDistance(a, b)
	score := (1.0 - float64(dist)/float64(maxLen)) * 100
	if score < 0 {
		score = 0
	}
	return int(score + 0.5)
}
