package shard

import (
	"strings"
	"unicode"
)

// Tokenize splits s into lowercased tokens: every rune that is not a
// Unicode letter or digit separates tokens. It applies no Unicode
// normalization and no width folding, so composed and decomposed forms of
// the same text yield different tokens. Unlike a general-purpose text
// pipeline it does not stem or drop stopwords: typo-tolerant literal-term
// matching needs the tokens as the user typed them, only case-folded.
func Tokenize(s string) []string {
	var tokens []string
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
