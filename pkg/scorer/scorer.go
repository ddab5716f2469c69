// Package scorer provides approximate string similarity scoring on a
// 0-100 scale, used by the fuzzy-match stage of every storage backend.
package scorer

import (
	"sort"
	"strings"
	"unicode"
)

// Scored is one fuzzy-match result: the stored term, its similarity to
// the query, and its index in the choices slice.
type Scored struct {
	Term  string
	Score float64
	Index int
}

// Scorer computes string similarity for fuzzy matching. Clean normalizes
// a term before scoring; Extract returns the top-K choices by similarity.
type Scorer interface {
	Clean(term string) string
	Extract(query string, choices []string, limit int) []Scored
}

// TokenSortRatio scores strings by sorting their tokens before taking an
// edit-distance ratio, so word order does not matter. This mirrors
// token_sort_ratio semantics from the rapidfuzz family.
type TokenSortRatio struct{}

// NewTokenSortRatio creates the default scorer.
func NewTokenSortRatio() *TokenSortRatio {
	return &TokenSortRatio{}
}

// Clean lowercases, strips non-alphanumeric runes and collapses
// whitespace.
func (t *TokenSortRatio) Clean(term string) string {
	return Clean(term)
}

// Extract scores the query against every choice and returns the top
// limit results by descending score. Choices are assumed to be already
// cleaned; the query is cleaned here.
func (t *TokenSortRatio) Extract(query string, choices []string, limit int) []Scored {
	q := tokenSort(Clean(query))

	results := make([]Scored, 0, len(choices))
	for i, choice := range choices {
		score := ratio(q, tokenSort(choice))
		results = append(results, Scored{Term: choice, Score: score, Index: i})
	}
	return topK(results, limit)
}

// Ratio scores strings by plain edit-distance ratio with no token
// reordering.
type Ratio struct{}

// NewRatio creates a plain ratio scorer.
func NewRatio() *Ratio {
	return &Ratio{}
}

// Clean lowercases, strips non-alphanumeric runes and collapses
// whitespace.
func (r *Ratio) Clean(term string) string {
	return Clean(term)
}

// Extract scores the query against every choice and returns the top
// limit results by descending score.
func (r *Ratio) Extract(query string, choices []string, limit int) []Scored {
	q := Clean(query)

	results := make([]Scored, 0, len(choices))
	for i, choice := range choices {
		results = append(results, Scored{Term: choice, Score: ratio(q, choice), Index: i})
	}
	return topK(results, limit)
}

// Clean lowercases a term, replaces non-alphanumeric runes with spaces
// and collapses runs of whitespace to single spaces.
func Clean(term string) string {
	var b strings.Builder
	b.Grow(len(term))
	space := true // swallow leading whitespace
	for _, r := range term {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// tokenSort splits a cleaned string on spaces, sorts the tokens and
// rejoins them.
func tokenSort(cleaned string) string {
	tokens := strings.Fields(cleaned)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// ratio maps edit distance onto 0-100: identical strings score 100,
// disjoint strings approach 0.
func ratio(a, b string) float64 {
	if a == b {
		return 100.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100.0
	}
	dist := levenshtein(a, b)
	return (1.0 - float64(dist)/float64(maxLen)) * 100.0
}

// levenshtein computes edit distance with the single-row algorithm,
// O(min(n,m)) space.
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(b); i++ {
		curr[0] = i
		for j := 1; j <= len(a); j++ {
			cost := 1
			if b[i-1] == a[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}

// topK sorts by descending score (stable, so equal scores keep input
// order) and truncates to limit.
func topK(results []Scored, limit int) []Scored {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func minInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
