// Package bm25 scores documents against a bag of query terms using the
// Okapi BM25 ranking function.
package bm25

import (
	"math"

	"github.com/RoaringBitmap/roaring"

	"github.com/feedsearch/feedsearch/internal/index"
)

// Standard BM25 parameters.
const (
	K1 = 1.2
	B  = 0.75
)

// Scores computes per-document BM25 scores for the given query terms.
// Duplicate query terms contribute once per occurrence. When target is
// non-nil, scoring is restricted to the documents in that bitmap and posting
// lists are only consulted for those documents. Terms absent from the index
// contribute nothing; documents matching no term are absent from the result.
func Scores(terms []string, idx *index.Index, target *roaring.Bitmap) map[string]float64 {
	scores := make(map[string]float64)
	n := idx.NumDocs()
	if n < 1 {
		n = 1
	}
	avgdl := idx.AvgDocLen()

	for _, term := range terms {
		postings := idx.Postings(term)
		if len(postings) == 0 {
			continue
		}
		idf := math.Log(1 + (float64(n)-float64(len(postings))+0.5)/(float64(len(postings))+0.5))

		if target == nil {
			for _, p := range postings {
				scores[p.DocID] += contribution(idf, p.TF, idx.DocLen(p.DocID), avgdl)
			}
			continue
		}

		// With positional data each candidate costs one map lookup instead
		// of a walk over the whole posting list.
		if idx.HasPositions() {
			it := target.Iterator()
			for it.HasNext() {
				docID := idx.DocIDOf(it.Next())
				tf := len(idx.Positions(term, docID))
				if tf == 0 {
					continue
				}
				scores[docID] += contribution(idf, tf, idx.DocLen(docID), avgdl)
			}
			continue
		}

		for _, p := range postings {
			id, ok := idx.InternalID(p.DocID)
			if !ok || !target.Contains(id) {
				continue
			}
			scores[p.DocID] += contribution(idf, p.TF, idx.DocLen(p.DocID), avgdl)
		}
	}
	return scores
}

func contribution(idf float64, tf, docLen int, avgdl float64) float64 {
	ftf := float64(tf)
	norm := K1 * (1 - B + B*float64(docLen)/avgdl)
	return idf * ftf * (K1 + 1) / (ftf + norm)
}
