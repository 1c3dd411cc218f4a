// Package tokenizer turns recipe text into index terms. A term is a maximal
// run of ASCII letters after lower-casing; every other byte separates terms.
package tokenizer

import (
	"iter"
	"strings"
)

// Terms yields the terms of text in order. The sequence is lazy and can be
// ranged over any number of times.
func Terms(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		lower := strings.ToLower(text)
		start := -1
		for i := 0; i < len(lower); i++ {
			if isLetter(lower[i]) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 {
				if !yield(lower[start:i]) {
					return
				}
				start = -1
			}
		}
		if start >= 0 {
			yield(lower[start:])
		}
	}
}

// Tokenize returns every term of text, duplicates included.
func Tokenize(text string) []string {
	terms := make([]string, 0, len(text)/6)
	for term := range Terms(text) {
		terms = append(terms, term)
	}
	return terms
}

// TermSet returns the distinct terms across all texts.
func TermSet(texts ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, text := range texts {
		for term := range Terms(text) {
			set[term] = struct{}{}
		}
	}
	return set
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z'
}
