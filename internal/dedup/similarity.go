package dedup

import (
	"github.com/pmezard/go-difflib/difflib"
)

// TitleSimilarity returns the Ratcliff/Obershelp ratio of two strings in
// [0, 1], compared rune by rune.
func TitleSimilarity(a, b string) float64 {
	return difflib.NewMatcher(splitRunes(a), splitRunes(b)).Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
