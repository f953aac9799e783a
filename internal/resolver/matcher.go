package resolver

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/sahilm/fuzzy"
)

// Matcher picks the closest candidate to query. Scores run from 0 (nothing
// in common) to 100 (identical after normalisation).
type Matcher interface {
	Best(query string, candidates []string) (string, int)
}

// LevenshteinMatcher scores by normalised edit distance. Inputs are
// lower-cased and stripped of punctuation; spacing differences are
// forgiven, so "Cloud 9" and "Cloud9" score 100.
type LevenshteinMatcher struct{}

func (LevenshteinMatcher) Best(query string, candidates []string) (string, int) {
	best, bestScore := "", -1
	for _, c := range candidates {
		// first candidate wins ties
		if s := Score(query, c); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, bestScore
}

// Score returns the similarity of a and b in [0, 100].
func Score(a, b string) int {
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return 0
	}
	s := ratio(a, b)
	if compact := ratio(strings.ReplaceAll(a, " ", ""), strings.ReplaceAll(b, " ", "")); compact > s {
		s = compact
	}
	return s
}

func ratio(a, b string) int {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(d)/float64(longest))))
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Filter returns the names that fuzzily contain pattern as a subsequence,
// best matches first. An empty pattern returns names unchanged.
func Filter(pattern string, names []string) []string {
	if strings.TrimSpace(pattern) == "" {
		return names
	}
	matches := fuzzy.Find(pattern, names)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Str)
	}
	return out
}
