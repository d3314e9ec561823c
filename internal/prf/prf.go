// Package prf implements pseudo-relevance feedback: expanding a query with
// frequent terms drawn from the top-ranked documents of an initial search.
package prf

import (
	"sort"

	"github.com/feedsearch/feedsearch/internal/tokenizer"
)

// stopList holds terms never proposed as expansions. It is intentionally
// smaller than the tokenizer's stop-word set; expansion only needs to avoid
// glue words that would match everything.
var stopList = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "to": {},
	"of": {}, "in": {}, "on": {}, "for": {}, "with": {}, "is": {},
	"are": {}, "was": {}, "were": {}, "be": {}, "as": {}, "by": {},
}

// Expand proposes up to n expansion terms for a query, mined from the texts
// of the top-ranked documents. lookup resolves a doc id to its indexed text;
// ids it cannot resolve are skipped. Candidate terms are ranked by total
// frequency across the feedback documents, ties broken by first appearance.
// Terms already in the query, stop-listed terms, and terms of length <= 2
// are never proposed. The function is pure: it does not touch the index and
// returns the same expansions for the same inputs.
func Expand(queryTerms []string, topDocIDs []string, lookup func(docID string) (string, bool), n int) []string {
	if n <= 0 || len(topDocIDs) == 0 {
		return nil
	}

	inQuery := make(map[string]struct{}, len(queryTerms))
	for _, t := range queryTerms {
		inQuery[t] = struct{}{}
	}

	freq := make(map[string]int)
	var order []string
	for _, docID := range topDocIDs {
		text, ok := lookup(docID)
		if !ok {
			continue
		}
		for _, term := range tokenizer.Tokenize(text) {
			if len(term) <= 2 {
				continue
			}
			if _, stop := stopList[term]; stop {
				continue
			}
			if _, dup := inQuery[term]; dup {
				continue
			}
			if freq[term] == 0 {
				order = append(order, term)
			}
			freq[term]++
		}
	}

	// Stable sort keeps first-seen order among equal counts.
	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}
