// Package tokenizer provides text tokenisation for the search engine. The
// default analyzer lower-cases input and extracts maximal alphanumeric runs;
// stop-word removal and stemming are optional and nothing else in the engine
// assumes either is active.
package tokenizer

import (
	"strings"
	"unicode"
)

// StopWords is the default English stop-word set used when an Analyzer
// enables stop-word removal.
var StopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Tokenize splits text into lower-cased alphanumeric terms using the default
// analyzer (no stop-word removal, no stemming). It is deterministic and
// stateless; empty input yields an empty slice.
func Tokenize(text string) []string {
	return Default.Tokenize(text)
}

// Analyzer controls optional normalisation applied after the base
// alphanumeric split.
type Analyzer struct {
	RemoveStopWords bool
	Stem            bool
}

// Default is the plain analyzer: lower-case alphanumeric runs only.
var Default = Analyzer{}

// Tokenize applies the analyzer to text.
func (a Analyzer) Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if !a.RemoveStopWords && !a.Stem {
		return words
	}
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if a.RemoveStopWords {
			if _, isStop := StopWords[word]; isStop {
				continue
			}
		}
		if a.Stem {
			word = stem(word)
			if word == "" {
				continue
			}
		}
		terms = append(terms, word)
	}
	return terms
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	suffixes := []struct {
		suffix      string
		replacement string
		minLen      int
	}{
		{"ational", "ate", 2},
		{"tional", "tion", 2},
		{"encies", "ence", 2},
		{"ances", "ance", 2},
		{"ments", "ment", 2},
		{"izing", "ize", 2},
		{"ating", "ate", 2},
		{"ously", "ous", 2},
		{"ively", "ive", 2},
		{"tion", "t", 3},
		{"sion", "s", 3},
		{"ying", "y", 2},
		{"ies", "y", 2},
		{"ing", "", 3},
		{"ers", "er", 2},
		{"est", "", 3},
		{"ed", "", 3},
		{"er", "", 3},
		{"ly", "", 3},
		{"es", "", 3},
		{"ss", "ss", 2},
		{"s", "", 3},
	}
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			stemmed := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(stemmed) >= rule.minLen {
				return stemmed
			}
		}
	}
	return word
}
