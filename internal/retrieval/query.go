package retrieval

import "strings"

// MaxQueryChars bounds a search query
const MaxQueryChars = 1000

// ResultSeparator sits between the items of one source in the full listing
const ResultSeparator = "\n\n---\n\n"

// CapQuery cuts q to MaxQueryChars characters
func CapQuery(q string) string {
	n := 0
	for i := range q {
		if n == MaxQueryChars {
			return q[:i]
		}
		n++
	}
	return q
}

// JoinItems renders every item of a source, uncapped, for display
func JoinItems(items []string) string {
	return strings.Join(items, ResultSeparator)
}
