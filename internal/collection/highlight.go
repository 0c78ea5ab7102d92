package collection

import (
	"strings"

	"github.com/monishk/shardsearch/internal/shard"
)

// highlightText finds the first window of affixTokens words on either side
// of a query token match within text, wraps matches in start/end tags, and
// returns the snippet plus the list of matched tokens.
func highlightText(text string, queryTokens []string, start, end string, affixTokens int) (string, []string) {
	if len(queryTokens) == 0 {
		return "", nil
	}
	if affixTokens <= 0 {
		affixTokens = 4
	}
	words := strings.Fields(text)
	tokenSet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		tokenSet[t] = struct{}{}
	}

	matchIdx := -1
	var matched []string
	for i, w := range words {
		norm := shard.Tokenize(w)
		for _, tok := range norm {
			if _, ok := tokenSet[tok]; ok {
				if matchIdx == -1 {
					matchIdx = i
				}
				matched = append(matched, tok)
			}
		}
	}
	if matchIdx == -1 {
		return "", nil
	}

	lo := matchIdx - affixTokens
	if lo < 0 {
		lo = 0
	}
	hi := matchIdx + affixTokens + 1
	if hi > len(words) {
		hi = len(words)
	}

	var b strings.Builder
	for i := lo; i < hi; i++ {
		if i > lo {
			b.WriteByte(' ')
		}
		w := words[i]
		if isQueryWord(w, tokenSet) {
			b.WriteString(start)
			b.WriteString(w)
			b.WriteString(end)
		} else {
			b.WriteString(w)
		}
	}
	return b.String(), matched
}

func isQueryWord(w string, tokenSet map[string]struct{}) bool {
	for _, tok := range shard.Tokenize(w) {
		if _, ok := tokenSet[tok]; ok {
			return true
		}
	}
	return false
}
