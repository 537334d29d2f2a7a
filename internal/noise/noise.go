// Package noise labels tokens of semantic search results as noise and
// computes the semantic noise ratio.
package noise

import (
	"regexp"
	"sort"
)

var spaceRun = regexp.MustCompile(`[\s\p{Z}\x{FEFF}]+`)

// Tokenize splits text into words and the whitespace runs between them, in
// order. Joining the tokens gives back text. There are no empty tokens.
func Tokenize(text string) []string {
	var tokens []string
	last := 0
	for _, loc := range spaceRun.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			tokens = append(tokens, text[last:loc[0]])
		}
		tokens = append(tokens, text[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		tokens = append(tokens, text[last:])
	}
	return tokens
}

// IsSpace reports whether tok is a whitespace run. Such tokens are never labelled.
func IsSpace(tok string) bool {
	loc := spaceRun.FindStringIndex(tok)
	return loc != nil && loc[0] == 0 && loc[1] == len(tok)
}

// Labels maps a result index to the sorted indexes of its noise tokens.
// It encodes as {"<resultIndex>": [tokenIndex, ...]}.
type Labels map[int][]int

// Toggle flips the noise label of token t in result r and reports whether
// the token is labelled afterwards.
func (l Labels) Toggle(r, t int) bool {
	set := make(map[int]struct{}, len(l[r])+1)
	for _, i := range l[r] {
		set[i] = struct{}{}
	}

	_, had := set[t]
	if had {
		delete(set, t)
	} else {
		set[t] = struct{}{}
	}

	out := make([]int, 0, len(set))
	for i := range set {
		out = append(out, i)
	}
	sort.Ints(out)
	l[r] = out
	return !had
}

// Has reports whether token t of result r is labelled
func (l Labels) Has(r, t int) bool {
	for _, i := range l[r] {
		if i == t {
			return true
		}
	}
	return false
}

// LabelledCount counts results among the first total that have at least one
// labelled token
func (l Labels) LabelledCount(total int) int {
	n := 0
	for r := 0; r < total; r++ {
		if len(l[r]) > 0 {
			n++
		}
	}
	return n
}

// Ratio is the percentage of the first total results carrying a noise label
func (l Labels) Ratio(total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(l.LabelledCount(total)) / float64(total) * 100
}
